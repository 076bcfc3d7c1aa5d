package service

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/channel-session-go/internal/audit"
	"github.com/openclaw/channel-session-go/internal/database"
	apperrors "github.com/openclaw/channel-session-go/internal/errors"
	"github.com/openclaw/channel-session-go/internal/model"
	"github.com/openclaw/channel-session-go/internal/repository"
	"github.com/openclaw/channel-session-go/internal/util"
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// SessionTerminator tears down a channel's live session. Remove runs
// deleteRows while the channel is locked against new connects.
type SessionTerminator interface {
	Remove(ctx context.Context, channelID, reason string, deleteRows func(ctx context.Context) error) error
	Status(ctx context.Context, channelID string) (model.ChannelStatus, error)
}

type ChannelList struct {
	Channels []model.Channel `json:"channels"`
	Total    int             `json:"total"`
}

const reasonChannelDeleted = "channel deleted"

type ChannelService struct {
	tx       TxRunner
	channels repository.ChannelRepository
	sessions repository.SessionRepository
	manager  SessionTerminator
}

func NewChannelService(
	tx TxRunner,
	channels repository.ChannelRepository,
	sessions repository.SessionRepository,
	manager SessionTerminator,
) *ChannelService {
	return &ChannelService{
		tx:       tx,
		channels: channels,
		sessions: sessions,
		manager:  manager,
	}
}

func (s *ChannelService) Create(ctx context.Context, params model.CreateChannelParams) (*model.Channel, error) {
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	params.AccountIdentifier = util.NormalizeAccountIdentifier(params.AccountIdentifier)
	if params.DisplayName == "" {
		return nil, apperrors.MissingRequired("displayName")
	}
	if params.AccountIdentifier == "" {
		return nil, apperrors.MissingRequired("accountIdentifier")
	}

	ch, err := s.channels.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventChannelCreate,
		ChannelID: ch.ID,
		Subject:   ch.AccountIdentifier,
	})
	return ch, nil
}

func (s *ChannelService) Get(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := s.channels.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ch == nil {
		return nil, apperrors.NotFound("Channel")
	}
	return ch, nil
}

// FindByID returns nil, nil for an unknown channel.
func (s *ChannelService) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	return s.channels.FindByID(ctx, id)
}

func (s *ChannelService) List(ctx context.Context, limit, offset int) (*ChannelList, error) {
	channels, err := s.channels.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	total, err := s.channels.Count(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &ChannelList{Channels: channels, Total: total}, nil
}

// Update edits the display name and account identifier. The identifier is
// fixed while the channel is pairing or active.
func (s *ChannelService) Update(ctx context.Context, id string, params model.UpdateChannelParams) (*model.Channel, error) {
	if params.DisplayName != nil {
		name := strings.TrimSpace(*params.DisplayName)
		if name == "" {
			return nil, apperrors.MissingRequired("displayName")
		}
		params.DisplayName = &name
	}
	if params.AccountIdentifier != nil {
		ident := util.NormalizeAccountIdentifier(*params.AccountIdentifier)
		if ident == "" {
			return nil, apperrors.MissingRequired("accountIdentifier")
		}
		params.AccountIdentifier = &ident

		status, err := s.manager.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if status != model.ChannelStatusDisconnected {
			return nil, apperrors.Conflict("Disconnect the channel before changing its account identifier")
		}
	}

	ch, err := s.channels.Update(ctx, id, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ch == nil {
		return nil, apperrors.NotFound("Channel")
	}

	audit.Log(ctx, audit.Event{Type: audit.EventChannelUpdate, ChannelID: id})
	return ch, nil
}

// Delete tears the channel down and removes it. The live session, any
// pairing request and the channel's transport listeners are released and the
// rows deleted in one transaction, with connects for the channel held off
// until it is gone.
func (s *ChannelService) Delete(ctx context.Context, id string) error {
	ch, err := s.channels.FindByID(ctx, id)
	if err != nil {
		return apperrors.Database(err)
	}
	if ch == nil {
		return apperrors.NotFound("Channel")
	}

	err = s.manager.Remove(ctx, id, reasonChannelDeleted, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := s.sessions.WithTx(tx).Delete(ctx, id); err != nil {
				return err
			}
			_, err := s.channels.WithTx(tx).Delete(ctx, id)
			return err
		})
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			return appErr
		}
		return apperrors.Database(err)
	}

	log.Info().Str("channelId", id).Msg("channel deleted")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventChannelDelete,
		ChannelID: id,
		Subject:   ch.AccountIdentifier,
	})
	return nil
}
