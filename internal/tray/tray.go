// Package tray provides an optional system tray entry for the upload server.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onOpen func()
	onQuit func()
	last   string
	mu     sync.RWMutex

	// ready is set once the tray is running; a Quit before that is held
	// in quitting and applied when it starts.
	ready    bool
	quitting bool
	quit     func()

	menuLast *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{quit: systray.Quit}
}

// OnOpen sets the callback called when "Open Gallery" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

func (t *Tray) onReady() {
	if t.markReady() {
		t.quit()
		return
	}

	systray.SetTitle("autoannotate")
	systray.SetTooltip("autoannotate upload server")

	menuOpen := systray.AddMenuItem("Open Gallery...", "Open the gallery in a browser")
	systray.AddSeparator()

	t.mu.Lock()
	t.menuLast = systray.AddMenuItem(lastTitle(t.last), "Last processed upload")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit autoannotate")

	go func() {
		for {
			select {
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	t.Quit()
}

// SetLast records the name of the last processed upload and shows it in
// the menu once the tray is running.
func (t *Tray) SetLast(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = name
	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(name))
	}
}

// Last returns the name passed to the latest SetLast call.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func lastTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}

// Quit makes Run return. Called before the tray is ready, it takes effect
// as soon as Run starts.
func (t *Tray) Quit() {
	t.mu.Lock()
	t.quitting = true
	ready := t.ready
	t.mu.Unlock()

	if ready {
		t.quit()
	}
}

// markReady records that the tray is running and reports whether a Quit
// is already pending.
func (t *Tray) markReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = true
	return t.quitting
}
