package capture

import "github.com/bryanchriswhite/WinPeek/internal/window"

// Filter is the ordered set of windows the UI wants captured.
// The zero value is an empty filter.
type Filter struct {
	windows []window.Handle
	set     map[window.Handle]struct{}
}

// NewFilter builds a filter, dropping duplicates while keeping first-seen order
func NewFilter(handles ...window.Handle) Filter {
	f := Filter{set: make(map[window.Handle]struct{}, len(handles))}
	for _, h := range handles {
		if _, dup := f.set[h]; dup {
			continue
		}
		f.set[h] = struct{}{}
		f.windows = append(f.windows, h)
	}
	return f
}

// Contains reports whether h is in the filter
func (f Filter) Contains(h window.Handle) bool {
	_, ok := f.set[h]
	return ok
}

// Len returns the number of windows in the filter
func (f Filter) Len() int { return len(f.windows) }

// Windows returns the filter's windows in order
func (f Filter) Windows() []window.Handle {
	return append([]window.Handle(nil), f.windows...)
}
