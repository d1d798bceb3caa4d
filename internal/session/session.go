// Package session runs one user's editor on a single logical thread and
// keeps it in sync with a room.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/connector"
	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/editor"
	"github.com/umlstudio/engine/internal/history"
	"github.com/umlstudio/engine/internal/realtime"
	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
	"github.com/umlstudio/engine/pkg/serial"
)

const awaitPoll = 20 * time.Millisecond

var errOffline = appErr.New(appErr.CodeInvalid, "session has no realtime channel")

// View is a consistent read of a session.
type View struct {
	State diagram.State
	Phase realtime.Phase
	Room  string
}

type options struct {
	historyLimit int
	presence     func(realtime.Presence)
	builder      []connector.Option
}

// Option configures a Session.
type Option func(*options)

func WithHistoryLimit(n int) Option { return func(o *options) { o.historyLimit = n } }

// WithPresence is called on the session thread for presence events.
func WithPresence(fn func(realtime.Presence)) Option {
	return func(o *options) { o.presence = fn }
}

func WithBuilderOptions(opts ...connector.Option) Option {
	return func(o *options) { o.builder = append(o.builder, opts...) }
}

// Session owns an editor, its sync controller and its relationship builder.
// Every method is safe for concurrent use: work is serialized on the
// session's dispatcher, which is also where inbound room events run.
type Session struct {
	d   *serial.Dispatcher
	ed  *editor.Editor
	ctl *realtime.Controller
	b   *connector.Builder
	log *zap.Logger
}

// New starts a session for user over ch. A nil channel gives an offline
// session that never joins a room.
func New(ch realtime.Channel, user realtime.UserInfo, opts ...Option) *Session {
	o := options{historyLimit: history.DefaultLimit}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		d:   serial.New(),
		ed:  editor.New(o.historyLimit),
		b:   connector.New(o.builder...),
		log: logger.Named("session").With(zap.String("user_id", user.UserID)),
	}
	if ch != nil {
		copts := []realtime.Option{realtime.WithPoster(s.d)}
		if o.presence != nil {
			copts = append(copts, realtime.WithPresence(o.presence))
		}
		s.ctl = realtime.NewController(ch, s.ed, user, copts...)
	}
	return s
}

// Join leaves the current room, if any, and joins roomID.
func (s *Session) Join(ctx context.Context, roomID string) error {
	return s.d.Dispatch(func() error {
		if s.ctl == nil {
			return errOffline
		}
		return s.ctl.Join(ctx, roomID)
	})
}

func (s *Session) Leave() error {
	return s.d.Dispatch(func() error {
		if s.ctl != nil {
			s.ctl.Leave()
		}
		return nil
	})
}

// Do runs fn with exclusive access to the editor.
func (s *Session) Do(fn func(ed *editor.Editor)) error {
	return s.d.Dispatch(func() error {
		fn(s.ed)
		return nil
	})
}

func (s *Session) View() (View, error) {
	var v View
	err := s.d.Dispatch(func() error {
		v = s.view()
		return nil
	})
	return v, err
}

func (s *Session) Snapshot() (diagram.State, error) {
	v, err := s.View()
	return v.State, err
}

// Await blocks until cond holds or ctx is done.
func (s *Session) Await(ctx context.Context, cond func(View) bool) error {
	ticker := time.NewTicker(awaitPoll)
	defer ticker.Stop()
	for {
		var ok bool
		if err := s.d.Dispatch(func() error {
			ok = cond(s.view())
			return nil
		}); err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Watch calls fn on the session thread after every editor change.
func (s *Session) Watch(fn editor.Observer) (func(), error) {
	var unsub func()
	err := s.d.Dispatch(func() error {
		unsub = s.ed.Subscribe(fn)
		return nil
	})
	if err != nil {
		return func() {}, err
	}
	return func() { _ = s.d.Post(unsub) }, nil
}

// SetTool arms the relationship builder; an empty tool disarms it.
func (s *Session) SetTool(t diagram.RelationType) error {
	return s.d.Dispatch(func() error {
		s.b.SetTool(t)
		return nil
	})
}

// ClickElement feeds a click on an element to the builder when a tool is
// armed, otherwise it selects the element. created reports whether a
// relationship was added.
func (s *Session) ClickElement(id string) (res connector.Result, created bool, err error) {
	err = s.d.Dispatch(func() error {
		if !s.b.Active() {
			s.ed.SetSelectedElements([]string{id})
			return nil
		}
		res, created = s.b.Click(s.ed.State(), id)
		if created {
			connector.Apply(s.ed, res)
		}
		return nil
	})
	return res, created, err
}

// Move tracks the pointer, in screen coordinates, for the guide line.
func (s *Session) Move(px, py float64) error {
	return s.d.Dispatch(func() error {
		s.b.Move(px, py, s.ed.State().Zoom)
		return nil
	})
}

// GuideLine returns the pending relationship's guide line.
func (s *Session) GuideLine() (connector.Line, bool, error) {
	var (
		l  connector.Line
		ok bool
	)
	err := s.d.Dispatch(func() error {
		l, ok = s.b.GuideLine()
		return nil
	})
	return l, ok, err
}

// ClickCanvas cancels a pending relationship and clears the selection.
func (s *Session) ClickCanvas() error {
	return s.d.Dispatch(func() error {
		s.b.ClickCanvas()
		if len(s.ed.State().SelectedElements) > 0 {
			s.ed.SetSelectedElements(nil)
		}
		return nil
	})
}

func (s *Session) Undo() (bool, error) {
	var ok bool
	err := s.d.Dispatch(func() error {
		ok = s.ed.Undo()
		return nil
	})
	return ok, err
}

func (s *Session) Redo() (bool, error) {
	var ok bool
	err := s.d.Dispatch(func() error {
		ok = s.ed.Redo()
		return nil
	})
	return ok, err
}

// Close leaves the room and stops the session thread. The channel is not
// closed; it may be shared through a registry.
func (s *Session) Close() {
	err := s.d.Dispatch(func() error {
		if s.ctl != nil {
			s.ctl.Close()
		}
		return nil
	})
	if err != nil {
		s.log.Debug("session already closed", zap.Error(err))
	}
	s.d.Close()
}

func (s *Session) view() View {
	v := View{State: s.ed.State()}
	if s.ctl != nil {
		v.Phase = s.ctl.Phase()
		v.Room = s.ctl.Room()
	}
	return v
}
