package usecase

import (
	"context"
	"slices"
	"strings"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
)

// BroadcastMessage is text with at most one attached photo or video, both
// referenced by Telegram file id.
type BroadcastMessage struct {
	Text        string
	PhotoFileID string
	VideoFileID string
}

type Broadcaster interface {
	Broadcast(telegramUserID int64, msg BroadcastMessage) error
}

type BroadcastReport struct {
	Recipients int
	Sent       int
	Failed     int
}

type BroadcastUsecase struct {
	watches     domain.WatchRepository
	broadcaster Broadcaster
	admins      []int64
	logger      *zap.Logger
}

func NewBroadcastUsecase(watches domain.WatchRepository, broadcaster Broadcaster, admins []int64, logger *zap.Logger) *BroadcastUsecase {
	return &BroadcastUsecase{watches: watches, broadcaster: broadcaster, admins: admins, logger: logger}
}

func (u *BroadcastUsecase) IsAdmin(telegramUserID int64) bool {
	return slices.Contains(u.admins, telegramUserID)
}

// Send fans msg out to every distinct watch owner. One failed recipient is
// logged and counted; the rest still receive the message.
func (u *BroadcastUsecase) Send(ctx context.Context, adminID int64, msg BroadcastMessage) (BroadcastReport, error) {
	var report BroadcastReport
	if !u.IsAdmin(adminID) {
		return report, ErrNotAdmin
	}
	if strings.TrimSpace(msg.Text) == "" && msg.PhotoFileID == "" && msg.VideoFileID == "" {
		return report, ErrEmptyBroadcast
	}

	recipients, err := u.watches.OwnerIDs(ctx)
	if err != nil {
		return report, err
	}
	report.Recipients = len(recipients)

	for _, id := range recipients {
		if err := ctx.Err(); err != nil {
			u.logger.Warn("broadcast interrupted", zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
			return report, err
		}
		if err := u.broadcaster.Broadcast(id, msg); err != nil {
			report.Failed++
			u.logger.Warn("failed to deliver broadcast", zap.Int64("telegram_user_id", id), zap.Error(err))
			continue
		}
		report.Sent++
	}

	u.logger.Info("broadcast finished",
		zap.Int64("admin_id", adminID),
		zap.Int("recipients", report.Recipients),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
