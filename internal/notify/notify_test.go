package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier_PostsAlert(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s want=POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := WebhookNotifier{URL: srv.URL, Service: "autopilot"}
	err := n.Notify(context.Background(), Alert{Event: EventGuardrailAlert, DecisionID: "d1", Message: "spend increase"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["service"] != "autopilot" || got["event"] != EventGuardrailAlert || got["decision_id"] != "d1" {
		t.Fatalf("payload=%v", got)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := WebhookNotifier{URL: srv.URL}.Notify(context.Background(), Alert{Event: "x"})
	if err == nil {
		t.Fatalf("err=nil want http error")
	}
	if err := (WebhookNotifier{}).Notify(context.Background(), Alert{}); err == nil {
		t.Fatalf("err=nil want missing url")
	}
}

type recordNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordNotifier) Notify(ctx context.Context, alert Alert) error {
	r.alerts = append(r.alerts, alert)
	return r.err
}

func TestMulti_DeliversToAllAndReturnsFirstError(t *testing.T) {
	a := &recordNotifier{err: errors.New("boom")}
	b := &recordNotifier{}
	err := Multi{a, nil, b}.Notify(context.Background(), Alert{Event: EventRollbackFailed})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("err=%v want=boom", err)
	}
	if len(a.alerts) != 1 || len(b.alerts) != 1 {
		t.Fatalf("a=%d b=%d want=1,1", len(a.alerts), len(b.alerts))
	}
}

func TestBestEffort_StampsTime(t *testing.T) {
	r := &recordNotifier{}
	BestEffort(r, nil, Alert{Event: EventExecutionFailed})
	if len(r.alerts) != 1 || r.alerts[0].At.IsZero() {
		t.Fatalf("alerts=%+v want one stamped alert", r.alerts)
	}
	BestEffort(nil, nil, Alert{})
}
