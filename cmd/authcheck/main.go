package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"shelfmate/pkg/apiclient"
)

type CheckResult struct {
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

type CheckSuite struct {
	client  *apiclient.Client
	Results []CheckResult
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:3000/api", "API base URL")
	email := flag.String("email", "alice@shelfmate.dev", "account email")
	password := flag.String("password", "secret1", "account password")
	username := flag.String("register", "", "register this username first instead of logging in")
	flag.Parse()

	expired := false
	suite := &CheckSuite{
		client: apiclient.New(*baseURL, apiclient.NewMemoryStore(),
			apiclient.WithOnSessionExpired(func() { expired = true }),
		),
	}

	fmt.Println("🧪 Starting auth session check...")
	fmt.Println("=================================")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *username != "" {
		suite.run("Register", func() error {
			_, err := suite.client.Register(ctx, *username, *email, *password)
			return err
		})
	} else {
		suite.run("Login", func() error {
			_, err := suite.client.Login(ctx, *email, *password)
			return err
		})
	}

	suite.run("Profile with fresh token", func() error {
		_, err := suite.client.Me(ctx)
		return err
	})

	// a rejected access token must be refreshed transparently
	suite.run("Profile after access token loss", func() error {
		suite.client.Store().SetAccessToken("not-a-valid-token")
		if _, err := suite.client.Me(ctx); err != nil {
			return err
		}
		if suite.client.Store().AccessToken() == "not-a-valid-token" {
			return errors.New("access token was not replaced")
		}
		return nil
	})

	suite.run("Explicit refresh", func() error {
		_, err := suite.client.Refresh(ctx)
		return err
	})

	refreshToken := suite.client.Store().RefreshToken()
	suite.run("Logout", func() error {
		return suite.client.Logout(ctx)
	})

	suite.run("Refresh token revoked after logout", func() error {
		suite.client.Store().SetTokens("not-a-valid-token", refreshToken)
		_, err := suite.client.Me(ctx)

		var apiErr *apiclient.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
			return fmt.Errorf("expected 401, got %v", err)
		}
		if !expired {
			return errors.New("session expiry callback not called")
		}
		return nil
	})

	if !suite.generateReport() {
		os.Exit(1)
	}
}

func (s *CheckSuite) run(step string, fn func() error) {
	start := time.Now()
	err := fn()

	result := CheckResult{
		Step:     step,
		Duration: time.Since(start),
		Success:  err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}
	s.Results = append(s.Results, result)

	statusIcon := "✅"
	if !result.Success {
		statusIcon = "❌"
	}
	fmt.Printf("   %s %s %v\n", statusIcon, step, result.Duration)
	if err != nil {
		fmt.Printf("      %s\n", err)
	}
}

func (s *CheckSuite) generateReport() bool {
	fmt.Println("\n📊 SESSION CHECK REPORT")
	fmt.Println("======================")

	passed := 0
	for _, r := range s.Results {
		if r.Success {
			passed++
		}
	}
	fmt.Printf("Passed: %d/%d\n", passed, len(s.Results))
	return passed == len(s.Results)
}
