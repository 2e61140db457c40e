package gallery

// Selection is the gallery's multi-select state. It is active exactly when
// at least one item is selected.
type Selection struct {
	order []string
	set   map[string]struct{}
}

func NewSelection() *Selection {
	return &Selection{set: make(map[string]struct{})}
}

// Active reports whether selection mode is on
func (s *Selection) Active() bool {
	return len(s.order) > 0
}

// LongPress enters selection mode with publicID selected. While the mode is
// already on it does nothing.
func (s *Selection) LongPress(publicID string) {
	if s.Active() {
		return
	}
	s.add(publicID)
}

// Tap toggles publicID while selection mode is on and reports true. Outside
// the mode the tap is an open action and false is returned.
func (s *Selection) Tap(publicID string) bool {
	if !s.Active() {
		return false
	}

	if s.Contains(publicID) {
		s.remove(publicID)
	} else {
		s.add(publicID)
	}
	return true
}

func (s *Selection) Contains(publicID string) bool {
	_, ok := s.set[publicID]
	return ok
}

// IDs returns the selected ids in selection order
func (s *Selection) IDs() []string {
	return append([]string(nil), s.order...)
}

func (s *Selection) Len() int { return len(s.order) }

// Clear leaves selection mode
func (s *Selection) Clear() {
	s.order = nil
	s.set = make(map[string]struct{})
}

func (s *Selection) add(id string) {
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Selection) remove(id string) {
	delete(s.set, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
