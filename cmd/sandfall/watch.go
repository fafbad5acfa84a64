package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/wricardo/sandfall/sim/engine"
)

var (
	rockStyle   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	sandStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	sourceStyle = tcell.StyleDefault.Foreground(tcell.ColorRed)
	statusStyle = tcell.StyleDefault.Foreground(tcell.ColorWhite).Reverse(true)
)

// viewport maps terminal cells onto cave coordinates. The source sits on
// the centre column of the top row.
type viewport struct {
	originX, originY int
}

func newViewport(source engine.Position, width int) viewport {
	return viewport{
		originX: source.X - width/2,
		originY: source.Y,
	}
}

// cave returns the cave position drawn at terminal cell x, y
func (v viewport) cave(x, y int) engine.Position {
	return engine.Position{X: x + v.originX, Y: y + v.originY}
}

func cellStyle(symbol rune) tcell.Style {
	switch symbol {
	case engine.SymbolRock:
		return rockStyle
	case engine.SymbolSand:
		return sandStyle
	case engine.SymbolSource:
		return sourceStyle
	}
	return tcell.StyleDefault
}

// watcher animates one run on a tcell screen
type watcher struct {
	screen   tcell.Screen
	scenario *engine.ScenarioConfig
	policy   engine.Policy
	rocks    []engine.Position
	run      *engine.Run
	batch    int
	paused   bool
}

func watch(ctx context.Context, scenario *engine.ScenarioConfig, policy engine.Policy, delay time.Duration, batch int) error {
	rocks, err := scenario.Rocks()
	if err != nil {
		return err
	}
	if batch < 1 {
		batch = 1
	}
	if delay <= 0 {
		delay = 30 * time.Millisecond
	}

	w := &watcher{scenario: scenario, policy: policy, rocks: rocks, batch: batch}
	if err := w.reset(); err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	w.screen = screen

	return w.loop(ctx, delay)
}

func (w *watcher) reset() error {
	run, err := engine.NewRun(w.rocks, w.scenario.SourcePosition(), w.policy)
	if err != nil {
		return err
	}
	w.run = run
	return nil
}

func (w *watcher) loop(ctx context.Context, delay time.Duration) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	done := make(chan struct{})
	defer close(done)
	events := pollEvents(w.screen, done)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			quit, err := w.handleEvent(ev)
			if err != nil || quit {
				return err
			}

		case <-ticker.C:
			if !w.paused {
				if err := w.step(); err != nil {
					return err
				}
			}
			w.draw()
		}
	}
}

// pollEvents forwards screen events until the screen is finalized or done
// is closed. The returned channel is closed when forwarding stops.
func pollEvents(screen tcell.Screen, done <-chan struct{}) <-chan tcell.Event {
	events := make(chan tcell.Event, 16)
	go func() {
		defer close(events)
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()
	return events
}

// step drops up to one batch of grains
func (w *watcher) step() error {
	for i := 0; i < w.batch && !w.run.Halted(); i++ {
		if _, err := w.run.Drop(); err != nil {
			return err
		}
	}
	return nil
}

func (w *watcher) handleEvent(ev tcell.Event) (bool, error) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return true, nil
		}
		if ev.Key() == tcell.KeyRune {
			switch ev.Rune() {
			case 'q':
				return true, nil
			case ' ':
				w.paused = !w.paused
			case 'r':
				return false, w.reset()
			}
		}

	case *tcell.EventResize:
		w.screen.Sync()
	}
	return false, nil
}

func (w *watcher) draw() {
	w.screen.Clear()
	width, height := w.screen.Size()
	v := newViewport(w.run.Source, width)
	floorY := w.run.FloorLevel + engine.FloorOffset

	// The last row holds the status line
	for y := 0; y < height-1; y++ {
		for x := 0; x < width; x++ {
			symbol := engine.CellSymbol(w.run, v.cave(x, y), floorY)
			if symbol == engine.SymbolAir {
				continue
			}
			w.screen.SetContent(x, y, symbol, nil, cellStyle(symbol))
		}
	}

	state := string(w.run.Status)
	if w.paused {
		state += " (paused)"
	}
	status := fmt.Sprintf(" %s | %s | settled %d | %s | space pause, r reset, q quit ",
		w.scenario.Name, w.run.Policy, w.run.SettledCount(), state)
	for i, r := range []rune(status) {
		if i >= width {
			break
		}
		w.screen.SetContent(i, height-1, r, nil, statusStyle)
	}

	w.screen.Show()
}
