package test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ExampleNew builds an engine over Redis with one grant strategy.
func ExampleNew() {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := tokenauth.New().
		WithRedis(rdb).
		WithGrantStrategy("password", tokenauth.GrantStrategyFunc(func(_ context.Context, creds tokenauth.Credentials) (*tokenauth.Principal, error) {
			if creds["password"] != "correct-horse" {
				return nil, tokenauth.ErrInvalidCredentials
			}
			return &tokenauth.Principal{Username: creds["username"]}, nil
		})).
		Build()
	if err != nil {
		fmt.Println("build:", err)
		return
	}
	defer engine.Close()

	s, err := engine.Login(context.Background(), tokenauth.LoginRequest{
		LoginType:   "password",
		Credentials: tokenauth.Credentials{"username": "alice", "password": "correct-horse"},
	})
	if err != nil {
		fmt.Println("login:", err)
		return
	}
	p, err := engine.Authenticate(context.Background(), "Bearer "+s.AccessToken)
	fmt.Println(p.Username, err)
	// Output: alice <nil>
}

// ExampleEngine_Login shows mapping a rejected login to its sentinel.
func ExampleEngine_Login() {
	engine, _ := tokenauth.New().
		WithGrantStrategy("password", tokenauth.GrantStrategyFunc(func(context.Context, tokenauth.Credentials) (*tokenauth.Principal, error) {
			return nil, tokenauth.ErrInvalidCredentials
		})).
		Build()
	defer engine.Close()

	_, err := engine.Login(context.Background(), tokenauth.LoginRequest{
		LoginType:   "password",
		Credentials: tokenauth.Credentials{"username": "alice", "password": "wrong"},
	})
	fmt.Println(errors.Is(err, tokenauth.ErrInvalidCredentials))

	_, err = engine.Login(context.Background(), tokenauth.LoginRequest{
		LoginType:   "sms",
		Credentials: tokenauth.Credentials{},
	})
	fmt.Println(errors.Is(err, tokenauth.ErrUnknownLoginType))
	// Output:
	// true
	// true
}

// ExampleEngine_IssueSession issues a session for a principal verified
// elsewhere, under an explicit client policy.
func ExampleEngine_IssueSession() {
	engine, _ := tokenauth.New().Build()
	defer engine.Close()

	s, err := engine.IssueSession(context.Background(), tokenauth.Principal{Username: "svc-batch"}, tokenauth.ClientPolicy{
		AccessExpire:         5 * time.Minute,
		RefreshExpire:        time.Hour,
		ConcurrentLoginCount: 1,
		ClientType:           3,
	})
	if err != nil {
		fmt.Println("issue:", err)
		return
	}
	fmt.Println(s.Username, s.ClientType, s.AccessExpiresIn)
	// Output: svc-batch 3 5m0s
}
