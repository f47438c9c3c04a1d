package attendance

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"qrattend/internal/apperr"
	"qrattend/internal/model"
	"qrattend/internal/store"
)

// Register validates name, issues a qr code and persists a new member.
func (s *Service) Register(ctx context.Context, name string) (model.Member, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return model.Member{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.store.InsertMember(ctx, model.Member{
		ID:        uuid.NewString(),
		Name:      name,
		QRCode:    s.qrCodeFor(name),
		CreatedAt: s.now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return model.Member{}, apperr.Conflict("member already exists", err)
	}
	if err != nil {
		return model.Member{}, storeFailure("insert member", err)
	}
	s.metrics.MemberRegistered()
	return m, nil
}

func (s *Service) qrCodeFor(name string) string {
	if s.qrMode == QRName {
		return name
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ListMembers returns every member in collation order of name.
func (s *Service) ListMembers(ctx context.Context) ([]model.Member, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, storeFailure("list members", err)
	}
	sortMembers(members)
	return members, nil
}

// GetMember returns a single member by id.
func (s *Service) GetMember(ctx context.Context, id string) (model.Member, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.store.FindMemberByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Member{}, apperr.NotFound("member not found")
	}
	if err != nil {
		return model.Member{}, storeFailure("find member", err)
	}
	return m, nil
}

// sortMembers orders by locale-aware name comparison, ties broken by id.
// Collators are not safe for concurrent use, so one is built per call.
func sortMembers(members []model.Member) {
	c := collate.New(language.Und)
	slices.SortStableFunc(members, func(a, b model.Member) int {
		if n := c.CompareString(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
}
