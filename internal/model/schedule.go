// Package model はドメインモデルを定義する。
package model

import "time"

// Schedule はユーザーごとの自動配信スケジュールを表す。1ユーザーにつき1行。
// LastDeliveryは初回配信まではnil。DeliveringとClaimedAtは
// 配信オーケストレータによる排他クレームの状態を保持する。
type Schedule struct {
	UserID          string
	Enabled         bool
	IntervalMinutes int
	LastDelivery    *time.Time
	Delivering      bool
	ClaimedAt       *time.Time
	UpdatedAt       time.Time
}

// ScheduleState はスケジュールの状態を表す。
type ScheduleState string

const (
	// ScheduleStateDisabled は自動配信が無効な状態。
	ScheduleStateDisabled ScheduleState = "disabled"
	// ScheduleStateIdle は有効だが次回配信時刻に達していない状態。
	ScheduleStateIdle ScheduleState = "idle"
	// ScheduleStateDue は配信時刻に達し、クレーム待ちの状態。
	ScheduleStateDue ScheduleState = "due"
	// ScheduleStateDelivering はオーケストレータにクレームされ配信中の状態。
	ScheduleStateDelivering ScheduleState = "delivering"
)

// デフォルトのスケジュール設定値。
const (
	DefaultIntervalMinutes = 60
	MinIntervalMinutes     = 5
)

// DefaultSchedule は指定ユーザーのデフォルトスケジュール（無効・60分間隔）を返す。
func DefaultSchedule(userID string) *Schedule {
	return &Schedule{
		UserID:          userID,
		Enabled:         false,
		IntervalMinutes: DefaultIntervalMinutes,
	}
}

// DueAt は指定時刻において配信時刻に達しているかを返す。
// LastDeliveryがnil（未配信）の場合は即座にdueとなる。
func (s *Schedule) DueAt(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastDelivery == nil {
		return true
	}
	interval := time.Duration(s.IntervalMinutes) * time.Minute
	return !now.Before(s.LastDelivery.Add(interval))
}

// StateAt は指定時刻におけるスケジュール状態を導出する。
// enabled=falseは他のどの状態よりも優先され、クレーム中でもDisabledを返す。
func (s *Schedule) StateAt(now time.Time) ScheduleState {
	if !s.Enabled {
		return ScheduleStateDisabled
	}
	if s.Delivering {
		return ScheduleStateDelivering
	}
	if s.DueAt(now) {
		return ScheduleStateDue
	}
	return ScheduleStateIdle
}
