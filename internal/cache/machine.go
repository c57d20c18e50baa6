package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 缓存状态
const (
	StateEmpty = "empty"
	StateFresh = "fresh"
	StateStale = "stale"
)

// 事件
const (
	EventStore   = "store"
	EventExpire  = "expire"
	EventClear   = "clear"
	EventRestore = "restore"
)

// Machine 缓存新鲜度状态机
type Machine struct {
	mu            sync.Mutex
	fsm           *fsm.FSM
	since         time.Time
	onStateChange func(from, to string)
}

// NewMachine 创建状态机，初始为 empty
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{
		onStateChange: onStateChange,
		since:         time.Now(),
	}

	m.fsm = fsm.NewFSM(
		StateEmpty,
		fsm.Events{
			// 写入后总是 fresh
			{Name: EventStore, Src: []string{StateEmpty, StateFresh, StateStale}, Dst: StateFresh},
			{Name: EventExpire, Src: []string{StateEmpty, StateFresh}, Dst: StateStale},
			{Name: EventClear, Src: []string{StateEmpty, StateFresh, StateStale}, Dst: StateEmpty},
			// 其他进程写入了共享存储
			{Name: EventRestore, Src: []string{StateEmpty, StateStale}, Dst: StateFresh},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 当前状态
func (m *Machine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// Since 进入当前状态的时间
func (m *Machine) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

// Trigger 触发事件，状态不变时不报错
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trigger(event)
}

func (m *Machine) trigger(event string) error {
	err := m.fsm.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	m.since = time.Now()
	return nil
}

// Sync 让状态机跟随存储中观察到的状态
func (m *Machine) Sync(observed string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.fsm.Current()
	if current == observed {
		return
	}

	var event string
	switch observed {
	case StateEmpty:
		event = EventClear
	case StateFresh:
		event = EventRestore
	case StateStale:
		event = EventExpire
	default:
		return
	}
	_ = m.trigger(event)
}
