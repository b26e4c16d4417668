package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/NasaVasa/pricewatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxMessageLen = 3800

type WatchChecker interface {
	CheckNow(ctx context.Context, ownerID int64, itemID string) (*usecase.CheckResult, error)
}

type Handlers struct {
	watchUC     *usecase.WatchUsecase
	priceUC     *usecase.PriceUsecase
	broadcastUC *usecase.BroadcastUsecase
	checker     WatchChecker
	sessions    domain.SessionStore
	logger      *zap.Logger
}

func NewHandlers(watchUC *usecase.WatchUsecase, priceUC *usecase.PriceUsecase, broadcastUC *usecase.BroadcastUsecase, checker WatchChecker, sessions domain.SessionStore, logger *zap.Logger) *Handlers {
	return &Handlers{
		watchUC:     watchUC,
		priceUC:     priceUC,
		broadcastUC: broadcastUC,
		checker:     checker,
		sessions:    sessions,
		logger:      logger,
	}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update.Message)
		return
	}
	h.handleDialog(ctx, api, update.Message)
}

func (h *Handlers) handleCommand(ctx context.Context, api Sender, message *tgbotapi.Message) {
	command := message.Command()
	args := message.CommandArguments()
	chatID := message.Chat.ID
	userID := message.From.ID

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.Int64("telegram_user_id", userID),
		zap.String("username", message.From.UserName),
		zap.String("command", command),
		zap.String("args", args),
	)

	// any new command abandons an unfinished dialog, except /skip which
	// answers one
	if command != "skip" {
		h.clearSession(ctx, userID)
	}

	switch command {
	case "start":
		h.reply(api, chatID, "Welcome! I watch Wildberries prices and tell you when an article gets cheap enough.\n\n"+h.helpFor(userID))
	case "help":
		h.reply(api, chatID, h.helpFor(userID))
	case "ping":
		h.reply(api, chatID, "Bot is up.")
	case "add":
		itemID, target, err := ParseWatchArgs(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /add [article] [price]")
			return
		}
		switch {
		case itemID == "":
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitItem}, "Send the Wildberries article number.")
		case target == "":
			h.acceptItemForAdd(ctx, api, chatID, userID, itemID)
		default:
			h.addWatch(ctx, api, chatID, userID, itemID, target)
		}
	case "list":
		h.listWatches(ctx, api, chatID, userID)
	case "edit":
		itemID, target, err := ParseWatchArgs(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /edit [article] [price]")
			return
		}
		switch {
		case itemID == "":
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitEditItem}, "Which article do you want to edit?")
		case target == "":
			h.acceptItemForEdit(ctx, api, chatID, userID, itemID)
		default:
			h.editWatch(ctx, api, chatID, userID, itemID, target)
		}
	case "remove":
		itemID, err := ParseItemID(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /remove [article]")
			return
		}
		if itemID == "" {
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitRemoveItem}, "Send the article you want to stop watching.")
			return
		}
		h.removeWatch(ctx, api, chatID, userID, itemID)
	case "check":
		itemID, err := ParseItemID(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /check [article]")
			return
		}
		if itemID == "" {
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitCheckItem}, "Which of your articles should I check?")
			return
		}
		h.checkWatch(ctx, api, chatID, userID, itemID)
	case "price":
		itemID, err := ParseItemID(args)
		if err != nil || itemID == "" {
			h.reply(api, chatID, "Usage: /price <article>")
			return
		}
		h.lookupPrice(ctx, api, chatID, itemID)
	case "broadcast":
		if !h.broadcastUC.IsAdmin(userID) {
			h.logger.Warn("broadcast denied", zap.Int64("telegram_user_id", userID))
			h.reply(api, chatID, h.errorMessage(usecase.ErrNotAdmin))
			return
		}
		if text := strings.TrimSpace(args); text != "" {
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitBroadcastMedia, Text: text}, "Send a photo or video to attach, or /skip to send text only.")
			return
		}
		h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitBroadcastText}, "Send the broadcast text.")
	case "skip":
		sess := h.loadSession(ctx, userID)
		if sess == nil || sess.Step != domain.StepAwaitBroadcastMedia {
			h.reply(api, chatID, "Nothing to skip.")
			return
		}
		h.clearSession(ctx, userID)
		h.broadcast(ctx, api, chatID, userID, usecase.BroadcastMessage{Text: sess.Text})
	case "cancel":
		h.reply(api, chatID, "Cancelled.")
	default:
		h.logger.Warn("unknown command", zap.Int64("telegram_user_id", userID), zap.String("command", command))
		h.reply(api, chatID, "Unknown command.\n\n"+h.helpFor(userID))
	}
}

func (h *Handlers) handleDialog(ctx context.Context, api Sender, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID
	text := strings.TrimSpace(message.Text)

	sess := h.loadSession(ctx, userID)
	if sess == nil {
		h.reply(api, chatID, "Send /help to see what I can do.")
		return
	}

	h.logger.Debug("telegram dialog step",
		zap.Int64("telegram_user_id", userID),
		zap.String("step", string(sess.Step)),
	)

	switch sess.Step {
	case domain.StepAwaitItem:
		h.acceptItemForAdd(ctx, api, chatID, userID, text)
	case domain.StepAwaitTarget:
		h.addWatch(ctx, api, chatID, userID, sess.ItemID, text)
	case domain.StepAwaitEditItem:
		h.acceptItemForEdit(ctx, api, chatID, userID, text)
	case domain.StepAwaitEditTarget:
		h.editWatch(ctx, api, chatID, userID, sess.ItemID, text)
	case domain.StepAwaitRemoveItem:
		h.removeWatch(ctx, api, chatID, userID, text)
	case domain.StepAwaitCheckItem:
		h.clearSession(ctx, userID)
		h.checkWatch(ctx, api, chatID, userID, text)
	case domain.StepAwaitBroadcastText:
		if text == "" {
			h.reply(api, chatID, "The broadcast needs some text. Send it, or /cancel.")
			return
		}
		h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitBroadcastMedia, Text: text}, "Send a photo or video to attach, or /skip to send text only.")
	case domain.StepAwaitBroadcastMedia:
		h.clearSession(ctx, userID)
		msg := usecase.BroadcastMessage{Text: sess.Text}
		switch {
		case len(message.Photo) > 0:
			msg.PhotoFileID = message.Photo[len(message.Photo)-1].FileID
		case message.Video != nil:
			msg.VideoFileID = message.Video.FileID
		}
		h.broadcast(ctx, api, chatID, userID, msg)
	default:
		h.logger.Warn("unknown dialog step", zap.Int64("telegram_user_id", userID), zap.String("step", string(sess.Step)))
		h.clearSession(ctx, userID)
		h.reply(api, chatID, h.helpFor(userID))
	}
}

func (h *Handlers) acceptItemForAdd(ctx context.Context, api Sender, chatID, userID int64, itemID string) {
	itemID, err := h.watchUC.ValidateItemID(itemID)
	if err != nil {
		h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitItem}, h.errorMessage(err))
		return
	}
	h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitTarget, ItemID: itemID}, "Now send the target price in roubles.")
}

func (h *Handlers) addWatch(ctx context.Context, api Sender, chatID, userID int64, itemID, target string) {
	watch, err := h.watchUC.AddWatch(ctx, userID, itemID, target)
	if err != nil {
		h.logger.Warn("add failed", zap.Int64("telegram_user_id", userID), zap.String("item_id", itemID), zap.Error(err))
		if errors.Is(err, usecase.ErrInvalidTarget) {
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitTarget, ItemID: itemID}, h.errorMessage(err))
			return
		}
		h.clearSession(ctx, userID)
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.clearSession(ctx, userID)
	h.logger.Info("add complete", zap.Int64("telegram_user_id", userID), zap.String("item_id", watch.ItemID), zap.Int("row", watch.Row))
	h.reply(api, chatID, fmt.Sprintf("Watching %s with target %s ₽.", watch.ItemID, domain.FormatPrice(watch.TargetPrice)))
}

func (h *Handlers) listWatches(ctx context.Context, api Sender, chatID, userID int64) {
	watches, err := h.watchUC.ListWatches(ctx, userID)
	if err != nil {
		h.logger.Warn("list failed", zap.Int64("telegram_user_id", userID), zap.Error(err))
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	if len(watches) == 0 {
		h.logger.Info("list empty", zap.Int64("telegram_user_id", userID))
		h.reply(api, chatID, "You are not watching anything yet. Use /add to start.")
		return
	}
	h.logger.Info("list complete", zap.Int64("telegram_user_id", userID), zap.Int("count", len(watches)))
	h.reply(api, chatID, formatWatchList(watches))
}

func (h *Handlers) acceptItemForEdit(ctx context.Context, api Sender, chatID, userID int64, itemID string) {
	itemID = strings.TrimSpace(itemID)
	if err := h.watchUC.OwnsWatch(ctx, userID, itemID); err != nil {
		h.clearSession(ctx, userID)
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitEditTarget, ItemID: itemID}, "Send the new target price.")
}

func (h *Handlers) editWatch(ctx context.Context, api Sender, chatID, userID int64, itemID, target string) {
	watch, err := h.watchUC.EditWatch(ctx, userID, itemID, target)
	if err != nil {
		h.logger.Warn("edit failed", zap.Int64("telegram_user_id", userID), zap.String("item_id", itemID), zap.Error(err))
		if errors.Is(err, usecase.ErrInvalidTarget) {
			h.askFor(ctx, api, chatID, &domain.Session{OwnerID: userID, Step: domain.StepAwaitEditTarget, ItemID: itemID}, h.errorMessage(err))
			return
		}
		h.clearSession(ctx, userID)
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.clearSession(ctx, userID)
	h.logger.Info("edit complete", zap.Int64("telegram_user_id", userID), zap.String("item_id", watch.ItemID))
	h.reply(api, chatID, fmt.Sprintf("Target for %s is now %s ₽.", watch.ItemID, domain.FormatPrice(watch.TargetPrice)))
}

func (h *Handlers) removeWatch(ctx context.Context, api Sender, chatID, userID int64, itemID string) {
	h.clearSession(ctx, userID)
	if err := h.watchUC.RemoveWatch(ctx, userID, itemID); err != nil {
		h.logger.Warn("remove failed", zap.Int64("telegram_user_id", userID), zap.String("item_id", itemID), zap.Error(err))
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.logger.Info("remove complete", zap.Int64("telegram_user_id", userID), zap.String("item_id", itemID))
	h.reply(api, chatID, fmt.Sprintf("Stopped watching %s.", strings.TrimSpace(itemID)))
}

func (h *Handlers) checkWatch(ctx context.Context, api Sender, chatID, userID int64, itemID string) {
	result, err := h.checker.CheckNow(ctx, userID, strings.TrimSpace(itemID))
	if err != nil {
		h.logger.Warn("check failed", zap.Int64("telegram_user_id", userID), zap.String("item_id", itemID), zap.Error(err))
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.reply(api, chatID, formatCheckResult(result))
}

func (h *Handlers) lookupPrice(ctx context.Context, api Sender, chatID int64, itemID string) {
	price, err := h.priceUC.LookupPrice(ctx, itemID)
	if err != nil {
		h.logger.Warn("price lookup failed", zap.String("item_id", itemID), zap.Error(err))
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.reply(api, chatID, formatPrice(price))
}

func (h *Handlers) broadcast(ctx context.Context, api Sender, chatID, userID int64, msg usecase.BroadcastMessage) {
	report, err := h.broadcastUC.Send(ctx, userID, msg)
	if err != nil {
		h.logger.Warn("broadcast failed", zap.Int64("telegram_user_id", userID), zap.Error(err))
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.reply(api, chatID, fmt.Sprintf("Broadcast finished: %d sent, %d failed.", report.Sent, report.Failed))
}

func (h *Handlers) askFor(ctx context.Context, api Sender, chatID int64, sess *domain.Session, prompt string) {
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error("failed to save session", zap.Int64("telegram_user_id", sess.OwnerID), zap.Error(err))
		h.reply(api, chatID, "Something went wrong. Please try again.")
		return
	}
	h.reply(api, chatID, prompt)
}

func (h *Handlers) loadSession(ctx context.Context, userID int64) *domain.Session {
	sess, err := h.sessions.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			h.logger.Warn("failed to load session", zap.Int64("telegram_user_id", userID), zap.Error(err))
		}
		return nil
	}
	return sess
}

func (h *Handlers) clearSession(ctx context.Context, userID int64) {
	if err := h.sessions.Delete(ctx, userID); err != nil {
		h.logger.Warn("failed to clear session", zap.Int64("telegram_user_id", userID), zap.Error(err))
	}
}

func (h *Handlers) helpFor(userID int64) string {
	if h.broadcastUC.IsAdmin(userID) {
		return HelpText + adminHelpText
	}
	return HelpText
}

func (h *Handlers) errorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrInvalidItemID):
		return "Invalid article. Send the numeric Wildberries article, for example 146972802."
	case errors.Is(err, usecase.ErrInvalidTarget):
		return "Invalid price. Send a positive number like 1500 or 999.90."
	case errors.Is(err, usecase.ErrWatchNotFound):
		return "You are not watching that article. Use /list to see your watches."
	case errors.Is(err, usecase.ErrWatchExists):
		return "You already watch that article. Use /edit to change its target."
	case errors.Is(err, usecase.ErrProductNotFound), errors.Is(err, domain.ErrProductNotFound):
		return "Product not found on Wildberries."
	case errors.Is(err, usecase.ErrNotAdmin):
		return "Access denied."
	case errors.Is(err, usecase.ErrEmptyBroadcast):
		return "The broadcast is empty."
	case domain.IsFetchError(err):
		return "Wildberries did not answer. Try again later."
	case domain.IsStoreError(err):
		return "Storage is unavailable right now. Try again later."
	}

	h.logger.Warn("unhandled error", zap.Error(err))
	return "Something went wrong. Please try again."
}

func formatWatchList(watches []domain.Watch) string {
	var builder strings.Builder
	builder.WriteString("Your watches:\n")
	for i, watch := range watches {
		line := formatWatchLine(watch)
		if builder.Len()+len(line) > maxMessageLen {
			builder.WriteString(fmt.Sprintf("...and %d more", len(watches)-i))
			break
		}
		builder.WriteString(line)
	}
	return builder.String()
}

func formatWatchLine(watch domain.Watch) string {
	last := "—"
	if watch.LastPrice != nil {
		last = domain.FormatPrice(*watch.LastPrice) + " ₽"
	}
	line := fmt.Sprintf("%s: target %s ₽, current %s", watch.ItemID, domain.FormatPrice(watch.TargetPrice), last)
	if watch.State() == domain.StateTriggered {
		line += " (notified)"
	}
	return line + "\n"
}

func formatCheckResult(result *usecase.CheckResult) string {
	current := result.Price.Effective()
	name := result.Watch.ItemID
	if result.Price.Name != "" {
		name = fmt.Sprintf("%s (%s)", result.Price.Name, result.Watch.ItemID)
	}
	text := fmt.Sprintf("%s: now %s ₽, target %s ₽.", name, domain.FormatPrice(current), domain.FormatPrice(result.Watch.TargetPrice))
	switch result.Action {
	case usecase.ActionNotify:
		text += "\nThe price reached your target."
	case usecase.ActionRearm:
		text += "\nThe price is above target again; you will be notified on the next drop."
	default:
		if current.Cmp(result.Watch.TargetPrice) <= 0 {
			text += "\nStill at or below target; you were already notified."
		}
	}
	return text
}

func formatPrice(price *domain.PriceResult) string {
	name := price.ItemID
	if price.Name != "" {
		name = fmt.Sprintf("%s (%s)", price.Name, price.ItemID)
	}
	if price.SalePrice != nil && price.SalePrice.IsPositive() && !price.SalePrice.Equal(price.Price) {
		return fmt.Sprintf("%s: %s ₽ (without discount %s ₽)", name, domain.FormatPrice(*price.SalePrice), domain.FormatPrice(price.Price))
	}
	return fmt.Sprintf("%s: %s ₽", name, domain.FormatPrice(price.Effective()))
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
