package debugtarget

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/jrepp/pylaunch/pkg/procstart"
	"github.com/jrepp/pylaunch/pkg/sessions"
)

// fakeProcess is an in-memory procstart.Process
type fakeProcess struct {
	mu sync.Mutex

	pid          int
	exitOnSignal bool
	ignoreKill   bool
	signalErr    error

	signals  []os.Signal
	killed   bool
	released bool

	exitOnce sync.Once
	exited   chan struct{}
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exited: make(chan struct{})}
}

func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() { close(p.exited) })
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	return nil
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	exit := p.exitOnSignal
	err := p.signalErr
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if exit {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	ignore := p.ignoreKill
	p.mu.Unlock()

	if !ignore {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

func (p *fakeProcess) Exited() <-chan struct{} { return p.exited }

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProcess) wasReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *fakeProcess) signalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals)
}

// stubSpawner records start infos and returns a fake process
type stubSpawner struct {
	mu      sync.Mutex
	infos   []*procstart.StartInfo
	process *fakeProcess
	err     error
}

func (s *stubSpawner) StartProcess(ctx context.Context, info *procstart.StartInfo) (procstart.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, info)
	if s.err != nil {
		return nil, s.err
	}
	if s.process == nil {
		s.process = newFakeProcess(4242)
	}
	return s.process, nil
}

func (s *stubSpawner) starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.infos)
}

// recordingSupervisor captures session updates
type recordingSupervisor struct {
	mu      sync.Mutex
	updates []sessions.Update
}

func (r *recordingSupervisor) Update(u sessions.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

var errSpawn = errors.New("spawn failed")
