package attendance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"qrattend/internal/model"
)

// AttendanceForDate lists every member for date: PRESENT with the stored
// timestamp when a record exists, ABSENT otherwise. Entries follow member
// order; records whose member cannot be resolved come last.
func (s *Service) AttendanceForDate(ctx context.Context, date string) ([]model.AttendanceEntry, error) {
	if err := CheckDate(date); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		records []model.AttendanceRecord
		members []model.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if records, err = s.store.ListAttendanceForDate(gctx, date); err != nil {
			return storeFailure("list attendance", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if members, err = s.store.ListMembers(gctx); err != nil {
			return storeFailure("list members", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortMembers(members)

	byMember := make(map[string]model.AttendanceRecord, len(records))
	for _, rec := range records {
		byMember[rec.MemberID] = rec
	}

	entries := make([]model.AttendanceEntry, 0, len(members))
	for _, m := range members {
		rec, ok := byMember[m.ID]
		if !ok {
			entries = append(entries, model.AttendanceEntry{
				MemberID:   m.ID,
				MemberName: m.Name,
				Date:       date,
				Status:     model.StatusAbsent,
			})
			continue
		}
		delete(byMember, m.ID)
		entries = append(entries, presentEntry(rec, m.Name))
	}
	for _, rec := range records {
		if _, orphan := byMember[rec.MemberID]; orphan {
			entries = append(entries, presentEntry(rec, rec.MemberName))
		}
	}
	return entries, nil
}

func presentEntry(rec model.AttendanceRecord, name string) model.AttendanceEntry {
	ts := rec.Timestamp
	return model.AttendanceEntry{
		ID:         rec.ID,
		MemberID:   rec.MemberID,
		MemberName: name,
		Date:       rec.Date,
		Status:     model.StatusPresent,
		Timestamp:  &ts,
	}
}
