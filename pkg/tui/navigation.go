package tui

// CycleFocusForward moves focus to the next visible service, wrapping
// around after the last.
func (m *Model) CycleFocusForward() {
	visible := m.visible()
	if len(visible) == 0 {
		return
	}
	idx := (m.focusedIndex(visible) + 1) % len(visible)
	m.focused = visible[idx]
}

// CycleFocusBackward moves focus to the previous visible service, wrapping
// around before the first.
func (m *Model) CycleFocusBackward() {
	visible := m.visible()
	if len(visible) == 0 {
		return
	}
	idx := (m.focusedIndex(visible) - 1 + len(visible)) % len(visible)
	m.focused = visible[idx]
}

// Focus sets focus to the named service. Unknown names are ignored.
func (m *Model) Focus(name string) {
	if _, ok := m.infos[name]; ok {
		m.focused = name
	}
}

// ToggleExpand switches the focused service between its card and the
// detail view.
func (m *Model) ToggleExpand() {
	if m.focused == "" {
		return
	}
	m.expanded = !m.expanded
}

// focusedIndex returns the position of the focused service in visible, or
// 0 when it is filtered out.
func (m *Model) focusedIndex(visible []string) int {
	for i, name := range visible {
		if name == m.focused {
			return i
		}
	}
	return 0
}
