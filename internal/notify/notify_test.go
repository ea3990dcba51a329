package notify

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewTelegramRequiresCredentials(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	_, err := NewTelegram("", 1, log)
	assert.Error(t, err)
	_, err = NewTelegram("123:abc", 0, log)
	assert.Error(t, err)
}

func TestRecorderAndNop(t *testing.T) {
	var n Notifier = Nop{}
	n.Notify(context.Background(), "dropped")

	r := &Recorder{}
	n = r
	n.Notify(context.Background(), "one")
	n.Notify(context.Background(), "two")
	assert.Equal(t, []string{"one", "two"}, r.Messages())
}
