package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/yoockh/callgate/internal/cache"
	"github.com/yoockh/callgate/internal/models"
	pgrepo "github.com/yoockh/callgate/internal/repositories/postgres"
	"github.com/yoockh/callgate/internal/utils"
)

// Address is a caller-supplied or on-file home address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street) != "" && strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.State) != "" && strings.TrimSpace(a.Zip) != ""
}

func (a Address) normalized() string {
	return utils.NormalizeAddress(a.Street, a.City, a.State, a.Zip)
}

type RegisterCustomerInput struct {
	ID             string          `json:"id"`
	FullName       string          `json:"full_name" binding:"required"`
	Phones         []string        `json:"phones" binding:"required,min=1"`
	CardNumber     string          `json:"card_number" binding:"required"`
	Address        Address         `json:"address" binding:"required"`
	AccountSummary json.RawMessage `json:"account_summary"`
}

type CustomerService interface {
	FindByPhone(ctx context.Context, phone string) (*models.Customer, error)
	Register(ctx context.Context, in RegisterCustomerInput) (*models.Customer, error)
	VerifyCardLast4(c *models.Customer, candidate string) bool
	VerifyAddress(c *models.Customer, candidate Address) bool
}

type customerService struct {
	customers pgrepo.CustomerRepository
	cache     cache.Cache
	ttl       time.Duration
}

func NewCustomerService(customers pgrepo.CustomerRepository, c cache.Cache, ttl time.Duration) CustomerService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &customerService{customers: customers, cache: c, ttl: ttl}
}

// cachedCustomer keeps the credential hashes that Customer hides from JSON.
type cachedCustomer struct {
	Customer      *models.Customer `json:"customer"`
	CardLast4Hash string           `json:"card_last4_hash"`
	AddressHash   string           `json:"address_hash"`
}

func phoneKey(phone string) string { return cache.Key("customer", "phone", phone) }

func (s *customerService) FindByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	const op = "CustomerService.FindByPhone"

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phone is required", nil)
	}

	if s.cache != nil {
		var cc cachedCustomer
		if hit, _ := s.cache.GetJSON(ctx, phoneKey(phone), &cc); hit && cc.Customer != nil {
			cc.Customer.CardLast4Hash = cc.CardLast4Hash
			cc.Customer.AddressHash = cc.AddressHash
			return cc.Customer, nil
		}
	}

	c, err := s.customers.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "customer not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get customer", err)
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, phoneKey(phone), cachedCustomer{
			Customer:      c,
			CardLast4Hash: c.CardLast4Hash,
			AddressHash:   c.AddressHash,
		}, s.ttl)
	}
	return c, nil
}

func (s *customerService) Register(ctx context.Context, in RegisterCustomerInput) (*models.Customer, error) {
	const op = "CustomerService.Register"

	last4 := utils.NormalizeCardLast4(in.CardNumber)
	if strings.TrimSpace(in.FullName) == "" || len(in.Phones) == 0 || last4 == "" || !in.Address.Complete() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "full_name, phones, card_number and a complete address are required", nil)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id must be a uuid", err)
	}

	cardHash, err := utils.HashSecret(last4)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to hash card", err)
	}
	addrHash, err := utils.HashSecret(in.Address.normalized())
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to hash address", err)
	}

	phones := make(pq.StringArray, 0, len(in.Phones))
	for _, p := range in.Phones {
		if p = strings.TrimSpace(p); p != "" {
			phones = append(phones, p)
		}
	}
	summary := in.AccountSummary
	if len(summary) == 0 {
		summary = json.RawMessage(`{}`)
	}

	c := &models.Customer{
		ID:             id,
		FullName:       strings.TrimSpace(in.FullName),
		Phones:         phones,
		CardLast4Hash:  cardHash,
		AddressHash:    addrHash,
		AccountSummary: datatypes.JSON(summary),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.customers.Upsert(ctx, c); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to upsert customer", err)
	}

	if s.cache != nil {
		keys := make([]string, 0, len(phones))
		for _, p := range phones {
			keys = append(keys, phoneKey(p))
		}
		_ = s.cache.Del(ctx, keys...)
	}
	return c, nil
}

func (s *customerService) VerifyCardLast4(c *models.Customer, candidate string) bool {
	if c == nil {
		return false
	}
	return utils.CheckSecret(c.CardLast4Hash, utils.NormalizeCardLast4(candidate))
}

func (s *customerService) VerifyAddress(c *models.Customer, candidate Address) bool {
	if c == nil || !candidate.Complete() {
		return false
	}
	return utils.CheckSecret(c.AddressHash, candidate.normalized())
}
