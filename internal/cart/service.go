package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/audiotailoc/commerce/internal/catalog"
	"github.com/audiotailoc/commerce/internal/identity"
	"github.com/audiotailoc/commerce/internal/inventory"
	"github.com/audiotailoc/commerce/internal/redisx"
)

// Store is the persistence side of the cart, implemented by Repo.
type Store interface {
	UpsertItem(ctx context.Context, id identity.Identity, productID string, qty int, unitPriceCents int64) error
	SetQuantity(ctx context.Context, id identity.Identity, productID string, qty int) error
	RemoveItem(ctx context.Context, id identity.Identity, productID string) error
	Lines(ctx context.Context, id identity.Identity) ([]Line, error)
	Clear(ctx context.Context, id identity.Identity) error
	Merge(ctx context.Context, guestID, userID string) error
}

type Catalog interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

type Service struct {
	Store   Store
	Catalog Catalog
	Redis   *redis.Client
	sfg     singleflight.Group // prevents cache stampede on Get
}

// AddItem upserts a line, summing quantities. The stock check here is
// informational only: checkout re-validates under a row lock.
func (s *Service) AddItem(ctx context.Context, id identity.Identity, productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	p, err := s.Catalog.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return catalog.ErrNotFound
	}
	if p.Stock < qty {
		return &inventory.ShortageError{Shortages: []inventory.Shortage{
			{ProductID: productID, Requested: qty, Available: p.Stock},
		}}
	}
	if err := s.Store.UpsertItem(ctx, id, productID, qty, p.PriceCents); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

// UpdateQuantity replaces a line's quantity; qty <= 0 removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, id identity.Identity, productID string, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, id, productID)
	}
	p, err := s.Catalog.Get(ctx, productID)
	if err != nil {
		return err
	}
	if p.Stock < qty {
		return &inventory.ShortageError{Shortages: []inventory.Shortage{
			{ProductID: productID, Requested: qty, Available: p.Stock},
		}}
	}
	if err := s.Store.SetQuantity(ctx, id, productID, qty); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, id identity.Identity, productID string) error {
	if err := s.Store.RemoveItem(ctx, id, productID); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func (s *Service) Get(ctx context.Context, id identity.Identity) (View, error) {
	key := fmt.Sprintf(redisx.KeyCartView, id.Key())
	if s.Redis != nil {
		if raw, err := s.Redis.Get(ctx, key).Result(); err == nil {
			var v View
			if json.Unmarshal([]byte(raw), &v) == nil {
				return v, nil
			}
		}
	}

	res, err, _ := s.sfg.Do(id.Key(), func() (any, error) {
		lines, err := s.Store.Lines(ctx, id)
		if err != nil {
			return View{}, err
		}
		v := BuildView(lines)
		if s.Redis != nil {
			if err := s.Redis.Set(ctx, key, kmarshal(v), redisx.TTLCartView).Err(); err != nil {
				log.Printf("cart view cache set: %v", err)
			}
		}
		return v, nil
	})
	if err != nil {
		return View{}, err
	}
	return res.(View), nil
}

func (s *Service) Clear(ctx context.Context, id identity.Identity) error {
	if err := s.Store.Clear(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

// Merge folds the guest cart into the user's cart on login.
func (s *Service) Merge(ctx context.Context, guestID, userID string) error {
	if err := s.Store.Merge(ctx, guestID, userID); err != nil {
		return err
	}
	s.invalidate(identity.Identity{GuestID: guestID})
	s.invalidate(identity.Identity{UserID: userID})
	return nil
}

func (s *Service) invalidate(id identity.Identity) {
	if s.Redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key := fmt.Sprintf(redisx.KeyCartView, id.Key())
	if err := s.Redis.Del(ctx, key).Err(); err != nil {
		log.Printf("cart view cache invalidate: %v", err)
	}
}

func kmarshal(v View) []byte {
	b, _ := json.Marshal(v)
	return b
}
