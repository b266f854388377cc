package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"evater/api/internal/exam"
	"evater/api/internal/llm"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Evaluator interface {
	FindTest(ctx context.Context, id string) (exam.Test, error)
	EvaluateTest(ctx context.Context, testID string, images []llm.Image) (exam.Evaluation, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, refs []string) ([]llm.Image, error)
}

type Router struct {
	Bot     Bot
	Eval    Evaluator
	Images  ImageFetcher
	Timeout time.Duration
	Log     *zap.Logger

	// Debounce is how long to wait for more pages of the same sheet.
	Debounce time.Duration

	chatTest sync.Map // chatID -> test id
	batches  sync.Map // key -> *photoBatch
}

func NewRouter(bot Bot, eval Evaluator, images ImageFetcher, timeout time.Duration, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Router{Bot: bot, Eval: eval, Images: images, Timeout: timeout, Log: log, Debounce: debounce}
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(*upd.Message)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	if upd.Message.Text != "" {
		r.send(upd.Message.Chat.ID, helpText)
	}
}

func (r *Router) HandleCommand(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "✅ OK")
	case "test":
		r.selectTest(cid, strings.TrimSpace(msg.CommandArguments()))
	default:
		r.send(cid, "Unknown command. "+helpText)
	}
}

func (r *Router) selectTest(cid int64, id string) {
	if id == "" {
		if cur, ok := r.currentTest(cid); ok {
			r.send(cid, "Current test: "+cur+"\nUsage: /test <test_id>")
			return
		}
		r.send(cid, "Usage: /test <test_id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	t, err := r.Eval.FindTest(ctx, id)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	r.chatTest.Store(cid, t.ID)
	r.send(cid, fmt.Sprintf("✅ Test selected: %s, %s (%d questions).\nNow send photos of the answer sheet.",
		t.Subject, t.Topic, len(t.Questions)))
}

func (r *Router) currentTest(cid int64) (string, bool) {
	v, ok := r.chatTest.Load(cid)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn("telegram send", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, "❌ "+userMessage(err))
}
