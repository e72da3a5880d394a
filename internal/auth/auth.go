// Package auth выполняет проверку личности отправителя и авторизацию операций.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/mmeshcher/orderdesk-system/internal/model"
)

// ErrMissingCredential возвращается, если учётные данные не переданы.
var (
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential возвращается, если внешний провайдер отверг токен.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrRoleStoreUnavailable возвращается, если хранилище ролей недоступно.
	ErrRoleStoreUnavailable = errors.New("role store unavailable")
)

// RoleStore определяет контракт внешнего хранилища ролей.
type RoleStore interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
}

// Resolver проверяет bearer-токены и принимает решения об авторизации.
type Resolver struct {
	secret []byte
	roles  RoleStore

	// failOpen разрешает административный доступ при недоступном хранилище
	// ролей. Допустимо только в режиме разработки: в производственном режиме
	// проверка роли обязана отказывать при сбое хранилища.
	failOpen bool
}

// NewResolver создаёт Resolver с указанным секретом подписи токенов.
func NewResolver(secret string, roles RoleStore, failOpen bool) *Resolver {
	return &Resolver{
		secret:   []byte(secret),
		roles:    roles,
		failOpen: failOpen,
	}
}

type tokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Resolve проверяет bearer-токен и возвращает личность его владельца.
func (r *Resolver) Resolve(credential string) (*model.Identity, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredential
	}

	return &model.Identity{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// IsAdmin сообщает, обладает ли личность административной ролью.
// При недоступном хранилище ролей отказывает, кроме режима разработки.
func (r *Resolver) IsAdmin(ctx context.Context, ident *model.Identity) (bool, error) {
	if ident == nil {
		return false, nil
	}
	if r.roles == nil {
		if r.failOpen {
			return true, nil
		}
		return false, ErrRoleStoreUnavailable
	}

	admin, err := r.roles.IsAdmin(ctx, ident.UID)
	if err != nil {
		if r.failOpen {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s", ErrRoleStoreUnavailable, err)
	}

	return admin, nil
}

// CanAccessOrder сообщает, может ли личность читать заказ указанного владельца:
// доступ есть у владельца заказа и у администратора.
func (r *Resolver) CanAccessOrder(ctx context.Context, ident *model.Identity, ownerUserID string) bool {
	if ident == nil {
		return false
	}
	if ident.UID == ownerUserID {
		return true
	}

	admin, err := r.IsAdmin(ctx, ident)
	return err == nil && admin
}
