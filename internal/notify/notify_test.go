package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/store"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func testShare() models.CounsellorShare {
	return models.CounsellorShare{
		ID:                   "share-1",
		SessionID:            "session-1",
		UserID:               "student-1",
		RiskLevel:            models.RiskEscalated,
		RequiresIntervention: true,
		Transcript:           []models.ChatTurn{{Content: "private words"}},
		CreatedAt:            time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAlertBodyOmitsTranscript(t *testing.T) {
	body := AlertFromShare(testShare()).Body()
	if strings.Contains(body, "private words") {
		t.Fatalf("alert body leaked transcript: %s", body)
	}
	for _, want := range []string{"session-1", "ESCALATED", "YES", "share-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("alert body missing %q: %s", want, body)
		}
	}
}

func TestTwilioNotifierSendsSMS(t *testing.T) {
	fake := &fakeCreator{}
	n := &TwilioNotifier{api: fake, from: "+15550001111", to: "+15550002222"}
	if err := n.NotifyCounsellor(context.Background(), AlertFromShare(testShare())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.params) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.params))
	}
	p := fake.params[0]
	if p.To == nil || *p.To != "+15550002222" || p.From == nil || *p.From != "+15550001111" {
		t.Errorf("unexpected addressing: %+v", p)
	}
}

func TestTwilioNotifierError(t *testing.T) {
	n := &TwilioNotifier{api: &fakeCreator{err: errors.New("rate limited")}, from: "a", to: "b"}
	err := n.NotifyCounsellor(context.Background(), AlertFromShare(testShare()))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func TestNewTwilioNotifierRequiresConfig(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	t.Setenv("COUNSELLOR_ALERT_NUMBER", "")
	if _, err := NewTwilioNotifier(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioNotifier(WithAccountSID("AC1"), WithAuthToken("tok"), WithFrom("+1")); err == nil {
		t.Error("expected error without counsellor number")
	}
	if _, err := NewTwilioNotifier(WithAccountSID("AC1"), WithAuthToken("tok"), WithFrom("+1"), WithCounsellorNumber("+2")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnqueueAndDeliverThroughOutbox(t *testing.T) {
	repo := store.NewInMemoryStore()
	alert := AlertFromShare(testShare())
	id1, err := Enqueue(repo, alert)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	id2, _ := Enqueue(repo, alert)
	if id1 != id2 {
		t.Errorf("expected duplicate share alert to dedupe")
	}

	mock := NewMockNotifier()
	sender := store.NewOutboxSender(repo, OutboxHandler(mock), time.Second)
	sender.Poll(context.Background())

	sent := mock.Sent()
	if len(sent) != 1 || sent[0].ShareID != "share-1" || sent[0].RiskLevel != models.RiskEscalated {
		t.Fatalf("unexpected alerts: %+v", sent)
	}
	msg, _ := repo.GetOutboxMessage(id1)
	if msg.Status != store.OutboxStatusSent {
		t.Errorf("expected sent status, got %s", msg.Status)
	}
}

func TestOutboxHandlerRejectsUnknownKind(t *testing.T) {
	h := OutboxHandler(NewMockNotifier())
	if err := h(context.Background(), store.OutboxMessage{Kind: "other"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
