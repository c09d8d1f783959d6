package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"netpoller/alerting"
	"netpoller/notifiers"
)

type fakeSender struct {
	failChat int64
	sent     []*bot.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	if p.ChatID == f.failChat {
		return nil, errors.New("chat not found")
	}
	f.sent = append(f.sent, p)
	return &models.Message{ID: len(f.sent)}, nil
}

func TestNotify(t *testing.T) {
	sender := &fakeSender{failChat: 2}
	n, err := NewWithSender(sender, []int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	notif := notifiers.FromEvent(alerting.Event{AlertID: "memory_r1", Type: alerting.TypeMemory, DeviceID: "r1", Message: "Memory usage alert"})
	err = n.Notify(context.Background(), notif)
	if err == nil || !strings.Contains(err.Error(), "chat_id 2") {
		t.Errorf("Notify = %v, want error for chat 2", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sender.sent))
	}
	if !strings.HasPrefix(sender.sent[0].Text, notif.Subject) {
		t.Errorf("text = %q", sender.sent[0].Text)
	}
}

func TestNewRequiresChats(t *testing.T) {
	if _, err := NewWithSender(&fakeSender{}, nil); err == nil {
		t.Error("notifier created without chat ids")
	}
}
