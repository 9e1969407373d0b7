package state

import (
	"errors"
	"sync"

	"github.com/wfunc/undercover/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(to models.Phase) error
	GetCurrentState() models.Phase
	AddTransition(from, to models.Phase, condition func() bool) error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Hook is called after every successful transition.
type Hook func(from, to models.Phase)

// 基础状态机实现：只允许显式登记过的阶段转换
type BaseStateMachine struct {
	currentState models.Phase
	transitions  map[models.Phase]map[models.Phase]func() bool // fromState -> toState -> condition
	hooks        []Hook
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState models.Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Phase]map[models.Phase]func() bool),
	}
}

func (sm *BaseStateMachine) ChangeState(newState models.Phase) error {
	sm.mutex.Lock()
	from := sm.currentState

	conditions, exists := sm.transitions[from]
	if !exists {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newState]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	sm.currentState = newState
	hooks := sm.hooks
	sm.mutex.Unlock()

	// hooks 在锁外执行，允许回调中读取当前状态
	for _, h := range hooks {
		h(from, newState)
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() models.Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to models.Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}

// OnChange registers a hook.
func (sm *BaseStateMachine) OnChange(h Hook) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.hooks = append(sm.hooks, h)
}

// NewGameMachine wires the undercover phase graph. mode reports the room's
// mode at transition time; offline rooms skip the description phase.
func NewGameMachine(mode func() models.Mode) *BaseStateMachine {
	sm := NewBaseStateMachine(models.PhaseWaiting)
	online := func() bool { return mode() == models.ModeOnline }
	offline := func() bool { return mode() == models.ModeOffline }

	sm.AddTransition(models.PhaseWaiting, models.PhaseDescription, online)
	sm.AddTransition(models.PhaseWaiting, models.PhaseVoting, offline)
	sm.AddTransition(models.PhaseDescription, models.PhaseVoting, online)
	sm.AddTransition(models.PhaseDescription, models.PhaseResults, nil)
	sm.AddTransition(models.PhaseVoting, models.PhaseDescription, online)
	// 平票重投，或线下模式进入下一轮
	sm.AddTransition(models.PhaseVoting, models.PhaseVoting, nil)
	sm.AddTransition(models.PhaseVoting, models.PhaseResults, nil)

	// 重置：任意阶段回到等待
	for _, from := range []models.Phase{models.PhaseWaiting, models.PhaseDescription, models.PhaseVoting, models.PhaseResults} {
		sm.AddTransition(from, models.PhaseWaiting, nil)
	}
	return sm
}
