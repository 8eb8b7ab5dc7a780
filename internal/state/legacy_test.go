package state

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLegacyHistoryLogsDroppedMessages(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := &seqIDs{}

	res := parseLegacyHistory(`[
		{"id": "m1", "text": "x", "sender": "robot"},
		{"text": "y", "sender": "User", "timestamp": "01/02/2024"}
	]`, now, ids.Next, zerolog.New(&buf))

	convs, err := res.Value()
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 1)
	msg := convs[0].Messages[0]
	require.Equal(t, SenderUser, msg.Sender)
	require.Equal(t, now, msg.Timestamp)
	require.NotEmpty(t, msg.ID)
	require.Contains(t, buf.String(), "skipping legacy message")
	require.Contains(t, buf.String(), "unreadable legacy timestamp")
}

func TestParseLegacyHistoryRejectsUndecodableJSON(t *testing.T) {
	res := parseLegacyHistory(`[{"id": 1`, time.Now(), (&seqIDs{}).Next, zerolog.Nop())
	_, err := res.Value()
	require.Error(t, err)
}
