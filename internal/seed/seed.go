// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"appforge/internal/middleware"
	"appforge/internal/models"
	"appforge/internal/repository"
	"appforge/internal/security"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password123"

// AdminAccount is the seeded administrator.
const AdminAccount = "admin"

// Options configuration for the seeder
type Options struct {
	NumUsers       int
	AppsPerUser    int
	MessagesPerApp int
	// FeaturedEvery marks every n-th app as featured; zero disables it.
	FeaturedEvery int
}

// Result reports what a seeding run created.
type Result struct {
	Users    []*models.User
	Apps     []*models.App
	Messages int
}

// Seeder writes demo users, apps and conversations through the repositories.
type Seeder struct {
	db    *gorm.DB
	users repository.UserRepository
	apps  repository.AppRepository
	chats repository.ChatHistoryRepository
	creds *security.Credentials
	fake  *gofakeit.Faker
}

// NewSeeder returns a Seeder bound to db. Verifiers are produced by creds. A
// non-zero randSeed makes the generated content reproducible.
func NewSeeder(db *gorm.DB, creds *security.Credentials, randSeed int64) *Seeder {
	if randSeed == 0 {
		randSeed = time.Now().UnixNano()
	}
	return &Seeder{
		db:    db,
		users: repository.NewUserRepository(db),
		apps:  repository.NewAppRepository(db),
		chats: repository.NewChatHistoryRepository(db),
		creds: creds,
		fake:  gofakeit.New(randSeed),
	}
}

// ClearAll physically removes every row of the application tables, children first.
func (s *Seeder) ClearAll() error {
	for _, model := range []any{&models.ChatHistory{}, &models.App{}, &models.User{}} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Seed creates the admin account plus opts.NumUsers regular users, each with
// apps and a short conversation per app.
func (s *Seeder) Seed(ctx context.Context, opts Options) (*Result, error) {
	verifier, err := s.creds.Hash(DefaultPassword)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	admin, err := s.createUser(ctx, AdminAccount, "Administrator", models.RoleAdmin, verifier)
	if err != nil {
		return nil, err
	}
	res.Users = append(res.Users, admin)

	for i := 0; i < opts.NumUsers; i++ {
		account := fmt.Sprintf("%s%03d", accountStem(s.fake.Username()), i)
		u, err := s.createUser(ctx, account, s.fake.Name(), models.RoleUser, verifier)
		if err != nil {
			return nil, err
		}
		res.Users = append(res.Users, u)
	}

	for _, u := range res.Users {
		for j := 0; j < opts.AppsPerUser; j++ {
			priority := 0
			if opts.FeaturedEvery > 0 && (len(res.Apps)+1)%opts.FeaturedEvery == 0 {
				priority = 99
			}
			app, err := s.createApp(ctx, u, priority)
			if err != nil {
				return nil, err
			}
			res.Apps = append(res.Apps, app)

			n, err := s.createConversation(ctx, app, opts.MessagesPerApp)
			if err != nil {
				return nil, err
			}
			res.Messages += n
		}
	}

	middleware.Logger.InfoContext(ctx, "seeding complete",
		slog.Int("users", len(res.Users)),
		slog.Int("apps", len(res.Apps)),
		slog.Int("messages", res.Messages),
	)
	return res, nil
}

func (s *Seeder) createUser(ctx context.Context, account, name string, role models.UserRole, verifier string) (*models.User, error) {
	u := models.NewUser(models.User{
		UserAccount:  account,
		UserPassword: verifier,
		UserName:     name,
		UserAvatar:   s.fake.ImageURL(128, 128),
		UserProfile:  s.fake.Sentence(8),
		UserRole:     role,
	})
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %s: %w", account, err)
	}
	return u, nil
}

var codeGenTypes = []models.CodeGenType{models.CodeGenHTML, models.CodeGenMultiFile, models.CodeGenVueProject}

func (s *Seeder) createApp(ctx context.Context, owner *models.User, priority int) (*models.App, error) {
	prompt := fmt.Sprintf("Build a %s for %s. %s", s.fake.AppName(), s.fake.Company(), s.fake.Sentence(12))
	app := models.NewApp(models.App{
		AppName:     s.fake.AppName(),
		Cover:       s.fake.ImageURL(640, 360),
		InitPrompt:  prompt,
		CodeGenType: codeGenTypes[s.fake.Number(0, len(codeGenTypes)-1)],
		Priority:    priority,
		UserID:      owner.ID,
	})
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("create app for user %d: %w", owner.ID, err)
	}
	return app, nil
}

// createConversation alternates user prompts and AI replies, starting with the user.
func (s *Seeder) createConversation(ctx context.Context, app *models.App, messages int) (int, error) {
	for i := 0; i < messages; i++ {
		msgType := models.MessageUser
		text := s.fake.Question()
		if i%2 == 1 {
			msgType = models.MessageAI
			text = s.fake.Paragraph(1, 3, 12, " ")
		}
		h := models.NewChatHistory(models.ChatHistory{
			Message:     text,
			MessageType: msgType,
			AppID:       app.ID,
			UserID:      app.UserID,
		})
		if err := s.chats.Create(ctx, h); err != nil {
			return i, fmt.Errorf("create message for app %d: %w", app.ID, err)
		}
	}
	return messages, nil
}

// accountStem keeps the alphanumeric part of a generated username so every
// seeded account has at least four characters once the index is appended.
func accountStem(username string) string {
	stem := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strings.ToLower(username))
	if len(stem) < 2 {
		stem = "user"
	}
	if len(stem) > 16 {
		stem = stem[:16]
	}
	return stem
}
