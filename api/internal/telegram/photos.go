package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	testID, ok := r.currentTest(cid)
	if !ok {
		r.send(cid, "Select a test first: /test <test_id>")
		return
	}

	ph := msg.Photo[len(msg.Photo)-1]
	url, err := r.Bot.GetFileDirectURL(ph.FileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}

	key := "chat:" + fmt.Sprint(cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}

	var b *photoBatch
	for {
		bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: cid, Key: key, TestID: testID})
		b = bi.(*photoBatch)
		b.mu.Lock()
		if !b.closed {
			break
		}
		// Already taken for evaluation; this page starts the next sheet.
		b.mu.Unlock()
		r.batches.CompareAndDelete(key, b)
	}
	b.urls = append(b.urls, url)
	first := len(b.urls) == 1
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(r.Debounce, func() { r.processBatch(b) })
	b.mu.Unlock()

	if first {
		r.send(cid, photoAcceptedText)
	}
}

// processBatch evaluates the pages collected in b. A batch is processed once;
// late timers of a closed batch are no-ops.
func (r *Router) processBatch(b *photoBatch) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	urls := append([]string(nil), b.urls...)
	b.mu.Unlock()
	r.batches.CompareAndDelete(b.Key, b)
	if len(urls) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	images, err := r.Images.Fetch(ctx, urls)
	if err != nil {
		r.SendError(b.ChatID, err)
		return
	}
	ev, err := r.Eval.EvaluateTest(ctx, b.TestID, images)
	if err != nil {
		r.Log.Warn("evaluation failed", zap.Int64("chat_id", b.ChatID), zap.String("test_id", b.TestID), zap.Error(err))
		r.SendError(b.ChatID, err)
		return
	}
	r.send(b.ChatID, formatEvaluation(ev))
}
