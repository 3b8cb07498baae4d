package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Running: s.c != nil, Schedules: make([]ScheduleInfo, 0, len(s.order))}
	for _, id := range s.order {
		e := s.entries[id]
		it := ScheduleInfo{ID: id, Spec: e.spec, SourceFile: e.sc.SourceFile}
		it.StartDate, it.EndDate = e.sc.Window()
		if s.c != nil && e.entryID != 0 {
			ce := s.c.Entry(e.entryID)
			it.Next, it.Prev = ce.Next, ce.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	return snap
}
