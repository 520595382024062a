package queue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autopilot/internal/events"
	"autopilot/internal/models"
)

const DefaultMaxHistory = 10000

// Queue owns every decision, queue item and history entry behind one mutex.
// Callers only ever see clones.
type Queue struct {
	Events        events.Publisher
	Logger        *zap.Logger
	RetryBudget   int
	ActionTimeout time.Duration
	MaxHistory    int
	Now           func() time.Time
	NewID         func() string

	mu        sync.Mutex
	seq       uint64
	pending   []*models.QueueItem
	active    map[string]*models.QueueItem
	inflight  map[string]string
	history   []*models.QueueItem
	byID      map[string]*models.QueueItem
	decisions map[string]*models.Decision
}

func New(publisher events.Publisher, logger *zap.Logger) *Queue {
	return &Queue{
		Events:        publisher,
		Logger:        logger,
		RetryBudget:   models.DefaultRetryBudget,
		ActionTimeout: models.DefaultActionTimeout,
		MaxHistory:    DefaultMaxHistory,
		active:        map[string]*models.QueueItem{},
		inflight:      map[string]string{},
		byID:          map[string]*models.QueueItem{},
		decisions:     map[string]*models.Decision{},
	}
}

func (q *Queue) now() time.Time {
	if q.Now != nil {
		return q.Now().UTC()
	}
	return time.Now().UTC()
}

func (q *Queue) newID() string {
	if q.NewID != nil {
		return q.NewID()
	}
	return uuid.NewString()
}

func (q *Queue) lazyInit() {
	if q.active == nil {
		q.active = map[string]*models.QueueItem{}
	}
	if q.inflight == nil {
		q.inflight = map[string]string{}
	}
	if q.byID == nil {
		q.byID = map[string]*models.QueueItem{}
	}
	if q.decisions == nil {
		q.decisions = map[string]*models.Decision{}
	}
}

// Record stores a generated decision so it can be approved, scheduled and learned from later.
func (q *Queue) Record(d *models.Decision) error {
	if d == nil || strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("decision id is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lazyInit()
	q.decisions[d.ID] = d.Clone()
	return nil
}

func (q *Queue) Decision(id string) (*models.Decision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.decisions[id]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", models.ErrNotFound, id)
	}
	return d.Clone(), nil
}

// Decisions returns clones of every stored decision matching keep (all when keep is nil).
func (q *Queue) Decisions(keep func(*models.Decision) bool) []*models.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Decision, 0, len(q.decisions))
	for _, d := range q.decisions {
		if keep == nil || keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateDecision applies fn to the stored decision under the queue lock.
// A returned error leaves the decision untouched.
func (q *Queue) UpdateDecision(id string, fn func(d *models.Decision) error) (*models.Decision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.decisions[id]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", models.ErrNotFound, id)
	}
	work := d.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	*d = *work
	return d.Clone(), nil
}

// Enqueue schedules an approved decision. priority 0 derives the priority from risk;
// a zero scheduledAt means now.
func (q *Queue) Enqueue(d *models.Decision, priority int, scheduledAt time.Time) (string, error) {
	if d == nil || strings.TrimSpace(d.ID) == "" {
		return "", fmt.Errorf("decision id is required")
	}
	if d.ApprovalStatus != models.ApprovalApproved && d.ApprovalStatus != models.ApprovalAutoApproved {
		return "", fmt.Errorf("%w: decision %s is %s", models.ErrApprovalRequired, d.ID, d.ApprovalStatus)
	}
	if priority == 0 {
		priority = models.PriorityForRisk(d.Risk)
	}
	if priority < models.PriorityHighest || priority > models.PriorityLowest {
		return "", fmt.Errorf("priority %d out of range %d..%d", priority, models.PriorityHighest, models.PriorityLowest)
	}
	actions, err := Actions(d, q.RetryBudget, q.ActionTimeout)
	if err != nil {
		return "", err
	}

	now := q.now()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	q.mu.Lock()
	q.lazyInit()
	if q.scheduledLocked(d.ID) {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: decision %s is already scheduled", models.ErrInvalidTransition, d.ID)
	}
	stored, ok := q.decisions[d.ID]
	if !ok {
		stored = d.Clone()
		q.decisions[d.ID] = stored
	} else {
		*stored = *d.Clone()
	}
	q.seq++
	item := &models.QueueItem{
		ExecutionID: q.newID(),
		Decision:    stored,
		Actions:     actions,
		Status:      models.StatusQueued,
		Priority:    priority,
		ScheduledAt: scheduledAt.UTC(),
		CreatedAt:   now,
	}
	item.SetSeq(q.seq)
	q.pending = append(q.pending, item)
	q.sortPending()
	q.byID[item.ExecutionID] = item
	ev := q.event(events.ExecutionQueued, item, "")
	q.mu.Unlock()

	q.publish(ev)
	if q.Logger != nil {
		q.Logger.Info("queue: enqueued",
			zap.String("execution_id", item.ExecutionID),
			zap.String("decision_id", d.ID),
			zap.String("decision_type", string(d.Kind)),
			zap.Int("priority", priority),
			zap.Int("actions", len(actions)),
		)
	}
	return item.ExecutionID, nil
}

func (q *Queue) scheduledLocked(decisionID string) bool {
	for _, item := range q.pending {
		if item.Decision.ID == decisionID {
			return true
		}
	}
	for _, item := range q.active {
		if item.Decision.ID == decisionID {
			return true
		}
	}
	return false
}

func (q *Queue) sortPending() {
	sort.SliceStable(q.pending, func(i, j int) bool {
		a, b := q.pending[i], q.pending[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.Seq() < b.Seq()
	})
}

// Dequeue claims the first due item whose campaign has nothing in flight.
// Expired items passed over on the way are retired and returned separately;
// they are never handed to a worker.
func (q *Queue) Dequeue(now time.Time) (*models.QueueItem, []*models.QueueItem) {
	now = now.UTC()
	var (
		claimed *models.QueueItem
		expired []*models.QueueItem
		evs     []events.Event
	)

	q.mu.Lock()
	q.lazyInit()
	kept := q.pending[:0]
	for _, item := range q.pending {
		if claimed != nil {
			kept = append(kept, item)
			continue
		}
		if item.Decision.Expired(now) {
			q.expireLocked(item, now)
			expired = append(expired, item.Clone())
			evs = append(evs, q.event(events.ExecutionExpired, item, item.Error))
			continue
		}
		if item.ScheduledAt.After(now) {
			kept = append(kept, item)
			continue
		}
		if _, busy := q.inflight[item.CampaignID()]; busy {
			kept = append(kept, item)
			continue
		}
		_ = item.SetStatus(models.StatusInProgress)
		started := now
		item.StartedAt = &started
		q.active[item.ExecutionID] = item
		q.inflight[item.CampaignID()] = item.ExecutionID
		claimed = item
		evs = append(evs, q.event(events.ExecutionStarted, item, ""))
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = nil
	}
	q.pending = kept
	var out *models.QueueItem
	if claimed != nil {
		out = claimed.Clone()
	}
	q.mu.Unlock()

	q.publish(evs...)
	return out, expired
}

// ExpireDue retires every queued item whose decision expired by now.
func (q *Queue) ExpireDue(now time.Time) []*models.QueueItem {
	now = now.UTC()
	var (
		expired []*models.QueueItem
		evs     []events.Event
	)
	q.mu.Lock()
	kept := q.pending[:0]
	for _, item := range q.pending {
		if item.Decision.Expired(now) {
			q.expireLocked(item, now)
			expired = append(expired, item.Clone())
			evs = append(evs, q.event(events.ExecutionExpired, item, item.Error))
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = nil
	}
	q.pending = kept
	q.mu.Unlock()

	q.publish(evs...)
	return expired
}

func (q *Queue) expireLocked(item *models.QueueItem, now time.Time) {
	_ = item.SetStatus(models.StatusExpired)
	done := now
	item.CompletedAt = &done
	item.Error = fmt.Sprintf("decision %s expired at %s", item.Decision.ID, item.Decision.ExpiresAt.Format(time.RFC3339))
	q.history = append(q.history, item)
	q.trimLocked(q.maxHistory())
}

// Complete finishes an in-progress item with the runner's result. A failed run whose
// compensation succeeded lands in rolled_back.
func (q *Queue) Complete(executionID string, result *models.ExecutionResult, completed []models.PlatformAction) (*models.QueueItem, error) {
	if result == nil {
		return nil, fmt.Errorf("execution result is required")
	}
	now := q.now()
	var evs []events.Event

	q.mu.Lock()
	item, ok := q.active[executionID]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: active execution %s", models.ErrNotFound, executionID)
	}
	to := models.StatusFailed
	if result.Success {
		to = models.StatusCompleted
	}
	if err := item.SetStatus(to); err != nil {
		q.mu.Unlock()
		return nil, err
	}
	done := now
	item.CompletedAt = &done
	item.Result = result.Clone()
	item.Error = result.Error
	item.CompletedActions = cloneActions(completed)
	evType := events.ExecutionCompleted
	if !result.Success {
		evType = events.ExecutionFailed
	}
	evs = append(evs, q.event(evType, item, item.Error))
	if !result.Success && result.RollbackRequired && result.RollbackSucceeded != nil && *result.RollbackSucceeded {
		_ = item.SetStatus(models.StatusRolledBack)
		evs = append(evs, q.event(events.ExecutionRolledBack, item, ""))
	}

	d := item.Decision
	d.ExecutionResult = result.Clone()
	if len(completed) > 0 {
		d.ExecutedAt = &done
		if err := d.SetApproval(models.ApprovalExecuted); err != nil && q.Logger != nil {
			q.Logger.Warn("queue: approval not advanced", zap.String("decision_id", d.ID), zap.Error(err))
		}
	}

	delete(q.active, executionID)
	if q.inflight[item.CampaignID()] == executionID {
		delete(q.inflight, item.CampaignID())
	}
	q.history = append(q.history, item)
	q.trimLocked(q.maxHistory())
	out := item.Clone()
	q.mu.Unlock()

	q.publish(evs...)
	return out, nil
}

// MarkRolledBack records a successful manual rollback of a completed execution.
func (q *Queue) MarkRolledBack(executionID string) (*models.QueueItem, error) {
	q.mu.Lock()
	out, ev, err := q.markRolledBackLocked(executionID)
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	q.publish(ev)
	return out, nil
}

func (q *Queue) markRolledBackLocked(executionID string) (*models.QueueItem, events.Event, error) {
	item, ok := q.byID[executionID]
	if !ok {
		return nil, events.Event{}, fmt.Errorf("%w: execution %s", models.ErrNotFound, executionID)
	}
	if item.Status != models.StatusCompleted {
		return nil, events.Event{}, fmt.Errorf("%w: execution %s is %s", models.ErrNotRollbackable, executionID, item.Status)
	}
	_ = item.SetStatus(models.StatusRolledBack)
	if item.Result != nil {
		ok := true
		item.Result.RollbackSucceeded = &ok
	}
	return item.Clone(), q.event(events.ExecutionRolledBack, item, ""), nil
}

// ClaimRollback takes the campaign's in-flight slot for compensating a completed
// execution. The slot is held until FinishRollback.
func (q *Queue) ClaimRollback(executionID string) (*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lazyInit()
	item, ok := q.byID[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", models.ErrNotFound, executionID)
	}
	if item.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: execution %s is %s", models.ErrNotRollbackable, executionID, item.Status)
	}
	campaign := item.CampaignID()
	if holder, busy := q.inflight[campaign]; busy {
		return nil, fmt.Errorf("%w: campaign %s held by %s", models.ErrCampaignBusy, campaign, holder)
	}
	q.inflight[campaign] = executionID
	return item.Clone(), nil
}

// FinishRollback releases the slot taken by ClaimRollback and, when compensated,
// moves the execution to rolled_back.
func (q *Queue) FinishRollback(executionID string, compensated bool) (*models.QueueItem, error) {
	q.mu.Lock()
	item, ok := q.byID[executionID]
	if !ok {
		// trimmed while compensating
		for campaign, holder := range q.inflight {
			if holder == executionID {
				delete(q.inflight, campaign)
			}
		}
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: execution %s", models.ErrNotFound, executionID)
	}
	if q.inflight[item.CampaignID()] == executionID {
		delete(q.inflight, item.CampaignID())
	}
	if !compensated {
		out := item.Clone()
		q.mu.Unlock()
		return out, nil
	}
	out, ev, err := q.markRolledBackLocked(executionID)
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	q.publish(ev)
	return out, nil
}

func (q *Queue) Execution(executionID string) (*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", models.ErrNotFound, executionID)
	}
	return item.Clone(), nil
}

// Status is a point-in-time snapshot for reporting.
func (q *Queue) Status() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := models.QueueStatus{
		TotalQueued: len(q.pending),
		Active:      len(q.active),
		Items:       make([]models.QueueEntry, 0, len(q.pending)),
	}
	for _, item := range q.history {
		switch item.Status {
		case models.StatusCompleted:
			st.Completed++
		case models.StatusFailed:
			st.Failed++
		case models.StatusRolledBack:
			st.RolledBack++
		case models.StatusExpired:
			st.Expired++
		}
	}
	for _, item := range q.pending {
		st.Items = append(st.Items, models.QueueEntry{
			ExecutionID:  item.ExecutionID,
			DecisionID:   item.Decision.ID,
			DecisionKind: item.Decision.Kind,
			CampaignID:   item.CampaignID(),
			Priority:     item.Priority,
			Status:       item.Status,
			ScheduledAt:  item.ScheduledAt,
		})
	}
	return st
}

// Trim drops the oldest history beyond max together with decisions nothing references
// any more. It returns the number of history entries dropped.
func (q *Queue) Trim(max int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.trimLocked(max)
}

// EvictStale removes decisions that can never be scheduled again and that no execution
// references: rejected ones, and pending or approved ones past their expiry. The evicted
// decisions are returned so callers can archive their final state.
func (q *Queue) EvictStale(now time.Time) []*models.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.Decision
	for id, d := range q.decisions {
		stale := d.ApprovalStatus == models.ApprovalRejected ||
			(d.ApprovalStatus != models.ApprovalExecuted && d.Expired(now))
		if !stale || q.referencedLocked(id, "") {
			continue
		}
		delete(q.decisions, id)
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (q *Queue) maxHistory() int {
	if q.MaxHistory <= 0 {
		return DefaultMaxHistory
	}
	return q.MaxHistory
}

func (q *Queue) trimLocked(max int) int {
	if max < 0 || len(q.history) <= max {
		return 0
	}
	drop := len(q.history) - max
	for _, item := range q.history[:drop] {
		delete(q.byID, item.ExecutionID)
		if !q.referencedLocked(item.Decision.ID, item.ExecutionID) {
			delete(q.decisions, item.Decision.ID)
		}
	}
	q.history = append([]*models.QueueItem(nil), q.history[drop:]...)
	return drop
}

func (q *Queue) referencedLocked(decisionID, except string) bool {
	for id, item := range q.byID {
		if id != except && item.Decision.ID == decisionID {
			return true
		}
	}
	return false
}

func (q *Queue) event(typ string, item *models.QueueItem, msg string) events.Event {
	return events.Event{
		Type:        typ,
		DecisionID:  item.Decision.ID,
		ExecutionID: item.ExecutionID,
		CampaignID:  item.CampaignID(),
		Status:      string(item.Status),
		Message:     msg,
		At:          q.now(),
	}
}

func (q *Queue) publish(evs ...events.Event) {
	if q.Events == nil {
		return
	}
	for _, ev := range evs {
		q.Events.Publish(ev)
	}
}

func cloneActions(in []models.PlatformAction) []models.PlatformAction {
	if in == nil {
		return nil
	}
	out := make([]models.PlatformAction, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
