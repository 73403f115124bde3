package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type testMessagingSuite struct {
	BaseWsSuite
}

func TestMessagingSuite(t *testing.T) {
	suite.Run(t, &testMessagingSuite{})
}

// TestDirectMessageFlow drives a full direct conversation against a
// running server: send, receive on the recipient side, read receipt
// back to the sender. It assumes conversation 1 exists between users
// 1 and 2, which the server seeds at startup when CHAT_SEED is set.
func (s *testMessagingSuite) TestDirectMessageFlow() {
	t := s.T()

	alice := s.Dial(t, "Alice connects", 1, "Alice")
	defer alice.Close()
	bob := s.Dial(t, "Bob connects", 2, "Bob")
	defer bob.Close()

	// --- STEP 1: SEND ---
	conversationID := int64(1)
	s.Send(t, alice, map[string]any{
		"action":         "send",
		"kind":           "user",
		"childId":        2,
		"conversationId": conversationID,
		"content":        "hello from the outside",
	})

	// --- STEP 2: DELIVERY ---
	payload := s.WaitFor(t, bob, "message", 5*time.Second)
	message := payload["message"].(map[string]any)
	s.Require().Equal("hello from the outside", message["content"])
	s.Require().Equal("delivered", message["status"])
	messageID := int64(message["id"].(float64))

	// --- STEP 3: CONFIRMATION ---
	confirmation := s.WaitFor(t, alice, "confirmationuser2", 5*time.Second)
	s.Require().NotNil(confirmation["message"])

	// --- STEP 4: READ RECEIPT ---
	s.Send(t, bob, map[string]any{
		"action":         "markRead",
		"conversationId": conversationID,
		"messageId":      messageID,
	})
	read := s.WaitFor(t, alice, "readMessages", 5*time.Second)
	s.Require().Equal(float64(conversationID), read["conversationId"])
	s.Require().Equal(float64(messageID), read["messageId"])
}

// TestHistoryPaging verifies the history action replays what the
// previous scenario stored.
func (s *testMessagingSuite) TestHistoryPaging() {
	t := s.T()

	alice := s.Dial(t, "Alice reconnects", 1, "Alice")
	defer alice.Close()

	s.Send(t, alice, map[string]any{
		"action":         "history",
		"conversationId": 1,
	})
	payload := s.WaitFor(t, alice, "history", 5*time.Second)
	s.Require().Contains(payload, "messages")
}
