package quota

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

const (
	quotaTable = "quota_data"

	sweepSchedule = "@every 300s"
)

// snapshot is the persisted form of the engine: configs keyed by resource
// type, usage keyed by "resourceType:userID".
type snapshot struct {
	Configs   map[string]*Config `json:"configs"`
	Usage     map[string]*Usage  `json:"usage"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Engine tracks per-user consumption of typed resources against
// configured period limits. Period rollover is detected lazily on every
// read and write; a periodic sweep additionally resets stale records and
// persists the full state, so usage mutations themselves are not written
// through per call.
type Engine struct {
	mu sync.Mutex

	configs map[string]*Config
	usage   map[string]map[string]*Usage

	store   storage.Store
	logger  *observability.Logger
	metrics *observability.Metrics
	nowFn   func() time.Time

	cron *cron.Cron
}

// NewEngine creates the engine, loads persisted configs and usage, and
// seeds the default quota configuration when none exists.
func NewEngine(store storage.Store, logger *observability.Logger) (*Engine, error) {
	e := &Engine{
		configs: make(map[string]*Config),
		usage:   make(map[string]map[string]*Usage),
		store:   store,
		logger:  logger,
		nowFn:   time.Now,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	if len(e.configs) == 0 {
		e.seedDefaultConfigs()
	}
	e.logger.WithFields(map[string]interface{}{
		"configs": len(e.configs),
		"usage":   e.usageCount(),
	}).Info("quota engine initialized")
	return e, nil
}

func (e *Engine) load() error {
	data, err := e.store.Load(context.Background(), quotaTable)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		e.logger.WithError(err).Error("failed to decode quota snapshot")
		return nil
	}
	for resourceType, config := range snap.Configs {
		if config == nil {
			continue
		}
		if _, err := ParsePeriod(string(config.Period)); err != nil {
			e.logger.WithError(err).WithField("resource_type", resourceType).Error("skipping malformed quota config")
			continue
		}
		e.configs[resourceType] = config
	}
	for key, usage := range snap.Usage {
		resourceType, userID, ok := strings.Cut(key, ":")
		if !ok || usage == nil || resourceType == "" || userID == "" {
			e.logger.WithField("key", key).Error("skipping malformed quota usage record")
			continue
		}
		users := e.usage[resourceType]
		if users == nil {
			users = make(map[string]*Usage)
			e.usage[resourceType] = users
		}
		users[userID] = usage
	}
	return nil
}

// seedDefaultConfigs installs the stock quota configuration; callers hold
// no lock (construction only)
func (e *Engine) seedDefaultConfigs() {
	e.configs = map[string]*Config{
		"model_tokens":    {Limit: 100000, Period: PeriodDay},
		"api_calls":       {Limit: 10000, Period: PeriodDay},
		"storage_mb":      {Limit: 1000, Period: PeriodInfinite},
		"search_queries":  {Limit: 200, Period: PeriodDay},
		"file_operations": {Limit: 100, Period: PeriodDay},
	}
	e.save()
}

// save persists the full snapshot; callers hold the lock
func (e *Engine) save() {
	snap := snapshot{
		Configs:   e.configs,
		Usage:     make(map[string]*Usage),
		UpdatedAt: e.nowFn(),
	}
	for resourceType, users := range e.usage {
		for userID, usage := range users {
			snap.Usage[resourceType+":"+userID] = usage
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode quota snapshot")
		return
	}
	if err := e.store.Save(context.Background(), quotaTable, data); err != nil {
		e.logger.WithError(err).Error("failed to persist quota data")
	}
}

// SetMetrics attaches reset and sweep counters. Call before Start.
func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	e.metrics = metrics
}

func (e *Engine) usageCount() int {
	count := 0
	for _, users := range e.usage {
		count += len(users)
	}
	return count
}

// Start begins the periodic sweep that persists state and proactively
// resets rolled-over usage records.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron != nil {
		return
	}
	e.cron = cron.New()
	e.cron.AddFunc(sweepSchedule, e.Sweep)
	e.cron.Start()
	e.logger.WithField("schedule", sweepSchedule).Info("quota sweep started")
}

// Stop halts the sweep, waits for an in-flight run, and writes a final
// snapshot.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.save()
	e.logger.Info("quota engine stopped")
}

// Sweep resets every usage record whose period has rolled over and
// persists the full state. It runs on the sweep schedule and may be
// invoked directly.
func (e *Engine) Sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	resets := 0
	for resourceType, users := range e.usage {
		config := e.configs[resourceType]
		if config == nil {
			continue
		}
		for userID, usage := range users {
			if resetNeeded(config, usage, now) {
				e.resetUsage(resourceType, userID, now, "sweep")
				resets++
			}
		}
	}
	e.save()

	if e.metrics != nil {
		e.metrics.QuotaSweepsTotal.Inc()
	}
	if resets > 0 {
		e.logger.WithField("resets", resets).Info("quota sweep reset stale usage")
	}
}

// SetQuota installs or replaces the configuration for a resource type.
func (e *Engine) SetQuota(resourceType string, limit int64, period Period, resetDay *int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.configs[resourceType] = &Config{Limit: limit, Period: period, ResetDay: resetDay}
	e.save()

	fields := map[string]interface{}{
		"resource_type": resourceType,
		"limit":         limit,
		"period":        period,
	}
	if resetDay != nil {
		fields["reset_day"] = *resetDay
	}
	e.logger.WithFields(fields).Info("quota configured")
}

// GetQuota returns a copy of the configuration for a resource type, or
// nil when none exists.
func (e *Engine) GetQuota(resourceType string) *Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	config, ok := e.configs[resourceType]
	if !ok {
		return nil
	}
	return config.clone()
}

// Configs returns a copy of every quota configuration keyed by resource
// type.
func (e *Engine) Configs() map[string]*Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]*Config, len(e.configs))
	for resourceType, config := range e.configs {
		out[resourceType] = config.clone()
	}
	return out
}

// ConfiguredTypes returns the configured resource types, sorted.
func (e *Engine) ConfiguredTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	types := make([]string, 0, len(e.configs))
	for resourceType := range e.configs {
		types = append(types, resourceType)
	}
	sort.Strings(types)
	return types
}

// GetUsage returns a user's current consumption for a resource type,
// resetting the record first when its period has rolled over.
func (e *Engine) GetUsage(resourceType, userID string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	e.maybeReset(resourceType, userID, now)

	if usage := e.lookupUsage(resourceType, userID); usage != nil {
		return usage.Used
	}
	return 0
}

// IncreaseUsage adds to a user's consumption counter, creating the usage
// record on first use. It always returns true.
func (e *Engine) IncreaseUsage(resourceType, userID string, amount int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	e.maybeReset(resourceType, userID, now)

	users := e.usage[resourceType]
	if users == nil {
		users = make(map[string]*Usage)
		e.usage[resourceType] = users
	}
	usage := users[userID]
	if usage == nil {
		usage = &Usage{PeriodStart: now}
		users[userID] = usage
	}

	usage.Used += amount
	usage.LastUpdated = now

	e.logger.WithFields(map[string]interface{}{
		"resource_type": resourceType,
		"user_id":       userID,
		"amount":        amount,
		"used":          usage.Used,
	}).Debug("usage increased")
	return true
}

// DecreaseUsage subtracts from a user's consumption counter, flooring at
// zero. When the record's period has rolled over the record is reset and
// the decrement is skipped, since a fresh period has nothing to give
// back. It always returns true.
func (e *Engine) DecreaseUsage(resourceType, userID string, amount int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	if e.maybeReset(resourceType, userID, now) {
		return true
	}

	usage := e.lookupUsage(resourceType, userID)
	if usage == nil {
		return true
	}

	usage.Used -= amount
	if usage.Used < 0 {
		usage.Used = 0
	}
	usage.LastUpdated = now

	e.logger.WithFields(map[string]interface{}{
		"resource_type": resourceType,
		"user_id":       userID,
		"amount":        amount,
		"used":          usage.Used,
	}).Debug("usage decreased")
	return true
}

// CheckQuota reports whether a user may consume additional units of a
// resource type. An unconfigured resource type is allowed with a warning.
// A non-nil customLimit overrides the configured limit.
func (e *Engine) CheckQuota(resourceType, userID string, additional int64, customLimit *int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	config, ok := e.configs[resourceType]
	if !ok {
		e.logger.WithField("resource_type", resourceType).Warn("no quota config, allowing usage")
		return true
	}

	limit := config.Limit
	if customLimit != nil {
		limit = *customLimit
	}

	now := e.nowFn()
	e.maybeReset(resourceType, userID, now)

	var current int64
	if usage := e.lookupUsage(resourceType, userID); usage != nil {
		current = usage.Used
	}

	if current+additional > limit {
		e.logger.WithFields(map[string]interface{}{
			"resource_type": resourceType,
			"user_id":       userID,
			"used":          current,
			"additional":    additional,
			"limit":         limit,
		}).Warn("quota exceeded")
		return false
	}
	return true
}

// ResetQuota clears usage records. Empty resourceType means every
// resource type; empty userID means every user of the selected types.
// Infinite-period resource types are skipped.
func (e *Engine) ResetQuota(resourceType, userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFn()
	if resourceType == "" {
		for resType, users := range e.usage {
			if config := e.configs[resType]; config != nil && config.Period == PeriodInfinite {
				continue
			}
			if userID == "" {
				e.usage[resType] = make(map[string]*Usage)
				continue
			}
			if _, ok := users[userID]; ok {
				e.resetUsage(resType, userID, now, "manual")
			}
		}
	} else {
		if config := e.configs[resourceType]; config != nil && config.Period == PeriodInfinite {
			e.logger.WithField("resource_type", resourceType).Info("infinite quota not reset")
			return true
		}
		users, ok := e.usage[resourceType]
		if !ok {
			return true
		}
		if userID == "" {
			e.usage[resourceType] = make(map[string]*Usage)
		} else if _, ok := users[userID]; ok {
			e.resetUsage(resourceType, userID, now, "manual")
		}
	}

	e.save()
	e.logger.WithFields(map[string]interface{}{
		"resource_type": orAll(resourceType),
		"user_id":       orAll(userID),
	}).Info("quota usage reset")
	return true
}

// Status reports a user's standing against a resource type's quota. A
// non-nil customLimit overrides the configured limit.
func (e *Engine) Status(resourceType, userID string, customLimit *int64) *Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	config, ok := e.configs[resourceType]
	if !ok {
		return &Status{ResourceType: resourceType, UserID: userID, HasQuota: false}
	}

	limit := config.Limit
	if customLimit != nil {
		limit = *customLimit
	}

	now := e.nowFn()
	e.maybeReset(resourceType, userID, now)

	var current int64
	periodStart := now
	if usage := e.lookupUsage(resourceType, userID); usage != nil {
		current = usage.Used
		periodStart = usage.PeriodStart
	}

	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	percentage := 100.0
	if limit > 0 {
		percentage = float64(current) / float64(limit) * 100
	}

	status := &Status{
		ResourceType: resourceType,
		UserID:       userID,
		HasQuota:     true,
		Limit:        limit,
		Used:         current,
		Remaining:    remaining,
		Percentage:   percentage,
		Period:       config.Period,
		PeriodStart:  &periodStart,
		NextReset:    nextResetTime(config, periodStart),
	}
	if config.ResetDay != nil {
		day := *config.ResetDay
		status.ResetDay = &day
	}
	return status
}

// lookupUsage returns the live usage record, or nil; callers hold the
// lock
func (e *Engine) lookupUsage(resourceType, userID string) *Usage {
	if users, ok := e.usage[resourceType]; ok {
		return users[userID]
	}
	return nil
}

// maybeReset resets the usage record when its period has rolled over and
// reports whether it did; callers hold the lock
func (e *Engine) maybeReset(resourceType, userID string, now time.Time) bool {
	config := e.configs[resourceType]
	usage := e.lookupUsage(resourceType, userID)
	if config == nil || usage == nil {
		return false
	}
	if !resetNeeded(config, usage, now) {
		return false
	}
	e.resetUsage(resourceType, userID, now, "lazy")
	return true
}

func (e *Engine) resetUsage(resourceType, userID string, now time.Time, trigger string) {
	usage := e.lookupUsage(resourceType, userID)
	if usage == nil {
		return
	}
	usage.Used = 0
	usage.PeriodStart = now
	usage.LastUpdated = now

	if e.metrics != nil {
		e.metrics.QuotaResetsTotal.WithLabelValues(resourceType, trigger).Inc()
	}
	e.logger.WithFields(map[string]interface{}{
		"resource_type": resourceType,
		"user_id":       userID,
		"trigger":       trigger,
	}).Debug("usage record reset")
}

// resetNeeded reports whether a usage record's period has rolled over.
// Day periods compare calendar dates, not elapsed hours. A month reset
// day larger than the current month's length fires on that month's last
// day instead.
func resetNeeded(config *Config, usage *Usage, now time.Time) bool {
	start := usage.PeriodStart

	switch config.Period {
	case PeriodInfinite:
		return false

	case PeriodDay:
		sy, sm, sd := start.Date()
		ny, nm, nd := now.Date()
		return sy != ny || sm != nm || sd != nd

	case PeriodMonth:
		if config.ResetDay == nil {
			return now.Year() != start.Year() || now.Month() != start.Month()
		}
		resetDay := *config.ResetDay
		if now.Day() == resetDay && start.Day() != resetDay {
			return true
		}
		lastDay := daysInMonth(now.Year(), now.Month())
		return resetDay > lastDay && now.Day() == lastDay

	case PeriodYear:
		if config.ResetDay == nil {
			return now.Year() != start.Year()
		}
		resetDay := *config.ResetDay
		if now.Month() != time.January || now.Day() != resetDay {
			return false
		}
		return start.Month() != time.January || start.Day() != resetDay
	}
	return false
}

// nextResetTime projects the upcoming reset one cycle forward from the
// period start, or nil for infinite periods. Targets beyond a month's
// length clamp to its last day.
func nextResetTime(config *Config, start time.Time) *time.Time {
	switch config.Period {
	case PeriodDay:
		next := start.AddDate(0, 0, 1)
		return &next

	case PeriodMonth:
		year, month, _ := start.Date()
		nextYear, nextMonth := year, month+1
		if nextMonth > time.December {
			nextYear, nextMonth = year+1, time.January
		}
		day := start.Day()
		if config.ResetDay != nil {
			day = *config.ResetDay
		}
		if last := daysInMonth(nextYear, nextMonth); day > last {
			day = last
		}
		next := timeOnDay(start, nextYear, nextMonth, day)
		return &next

	case PeriodYear:
		year := start.Year() + 1
		month, day := start.Month(), start.Day()
		if config.ResetDay != nil {
			month = time.January
			day = *config.ResetDay
			if day > 31 {
				day = 31
			}
		}
		if last := daysInMonth(year, month); day > last {
			day = last
		}
		next := timeOnDay(start, year, month, day)
		return &next
	}
	return nil
}

// timeOnDay keeps the clock-time and location of t on a new calendar day
func timeOnDay(t time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}
