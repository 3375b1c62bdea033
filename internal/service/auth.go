package service

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cocdeshijie/MikaniroBytes/internal/cache"
	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/model"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxClientNameLen = 120

var (
	ErrInvalidLogin   = badRequest("Invalid username or password.")
	ErrSessionExpired = newError(http.StatusUnauthorized, "Invalid or expired token.")
)

// 保留用户名
var reservedUsernames = map[string]struct{}{
	model.GuestUsername: {},
	"admin":             {},
}

// AuthService manages accounts and login sessions.
type AuthService struct {
	db       *gorm.DB
	tokens   *utils.TokenManager
	settings *SettingsService
	cache    cache.Cache
	ttl      time.Duration
}

// NewAuthService creates an auth service. cache may be nil.
func NewAuthService(db *gorm.DB, tokens *utils.TokenManager, settings *SettingsService, c cache.Cache, ttl time.Duration) *AuthService {
	return &AuthService{db: db, tokens: tokens, settings: settings, cache: c, ttl: ttl}
}

func sessionKey(token string) string {
	return cache.BuildCacheKey(cache.KeySession, token)
}

func (s *AuthService) forgetSessions(ctx context.Context, tokens ...string) {
	if s.cache == nil {
		return
	}
	for _, token := range tokens {
		if err := s.cache.Delete(ctx, sessionKey(token)); err != nil {
			log.Printf("auth: cache delete session: %v", err)
		}
	}
}

// RegistrationEnabled reports whether self-service sign-up is open.
func (s *AuthService) RegistrationEnabled(ctx context.Context) (bool, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return false, internal("load settings", err)
	}
	return settings.RegistrationEnabled, nil
}

// Register creates an account in the default group.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*model.User, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, internal("load settings", err)
	}
	if !settings.RegistrationEnabled {
		return nil, forbidden("Registration is disabled.")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, badRequest("Username and password are required.")
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, internal("check username", err)
	}
	if count > 0 {
		return nil, badRequest("Username already taken.")
	}
	var email *string
	if e := strings.TrimSpace(req.Email); e != "" {
		if err := db.Model(&model.User{}).Where("email = ?", e).Count(&count).Error; err != nil {
			return nil, internal("check email", err)
		}
		if count > 0 {
			return nil, badRequest("Email already in use.")
		}
		email = &e
	}

	groupID, err := s.defaultGroup(ctx, settings)
	if err != nil {
		return nil, internal("resolve group", err)
	}
	user := &model.User{
		Username:       username,
		Email:          email,
		HashedPassword: utils.GetPwd(req.Password),
		GroupID:        groupID,
	}
	if err := db.Create(user).Error; err != nil {
		if repo.IsDuplicateKey(err) {
			return nil, badRequest("Username already taken.")
		}
		return nil, internal("create user", err)
	}
	return user, nil
}

func (s *AuthService) defaultGroup(ctx context.Context, settings *model.SystemSettings) (*uint64, error) {
	var group model.Group
	q := s.db.WithContext(ctx)
	if settings.DefaultUserGroupID != nil {
		q = q.Where("id = ?", *settings.DefaultUserGroupID)
	} else {
		q = q.Where("name = ?", model.GroupUsers)
	}
	err := q.First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group.ID, nil
}

// Login checks credentials, opens a session and returns its signed token.
func (s *AuthService) Login(ctx context.Context, username, password, ip, userAgent string) (*dto.LoginResponse, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, internal("load user", err)
	}
	if !utils.CheckPwd(password, user.HashedPassword) {
		return nil, ErrInvalidLogin
	}

	if userAgent == "" {
		userAgent = "Unknown Agent"
	}
	if len(userAgent) > maxClientNameLen {
		userAgent = userAgent[:maxClientNameLen]
	}
	now := time.Now()
	session := &model.UserSession{
		UserID:       user.ID,
		Token:        uuid.NewString(),
		ClientName:   userAgent,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if ip != "" {
		session.IPAddress = &ip
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, internal("create session", err)
	}
	token, err := s.tokens.GenerateToken(user.ID, user.Username, session.Token)
	if err != nil {
		return nil, internal("sign token", err)
	}
	return &dto.LoginResponse{AccessToken: token, TokenType: "bearer"}, nil
}

// ValidateSession confirms the session behind a token still exists and belongs to its user.
func (s *AuthService) ValidateSession(ctx context.Context, claims *utils.Claims) error {
	key := sessionKey(claims.SessionToken)
	if s.cache != nil {
		var owner uint64
		if err := s.cache.Get(ctx, key, &owner); err == nil {
			if owner == claims.UserId {
				return nil
			}
			return ErrSessionExpired
		}
	}

	var session model.UserSession
	err := s.db.WithContext(ctx).Where("token = ?", claims.SessionToken).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionExpired
	}
	if err != nil {
		return err
	}
	if session.UserID != claims.UserId {
		return ErrSessionExpired
	}
	// 缓存有效期内不重复写 last_accessed
	if err := s.db.WithContext(ctx).Model(&session).UpdateColumn("last_accessed", time.Now()).Error; err != nil {
		log.Printf("auth: touch session %d: %v", session.ID, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, session.UserID, s.ttl); err != nil {
			log.Printf("auth: cache session: %v", err)
		}
	}
	return nil
}

// CheckToken reports whether a signed token maps to a live session.
func (s *AuthService) CheckToken(ctx context.Context, token string) bool {
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return false
	}
	return s.ValidateSession(ctx, claims) == nil
}

// Logout ends one session.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	res := s.db.WithContext(ctx).Where("token = ?", sessionToken).Delete(&model.UserSession{})
	if res.Error != nil {
		return internal("delete session", res.Error)
	}
	s.forgetSessions(ctx, sessionToken)
	if res.RowsAffected == 0 {
		return notFound("Session not found.")
	}
	return nil
}

// LogoutAll ends every session of a user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint64) error {
	var tokens []string
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.UserSession{}).Where("user_id = ?", userID).Pluck("token", &tokens).Error; err != nil {
		return internal("list sessions", err)
	}
	if err := db.Where("user_id = ?", userID).Delete(&model.UserSession{}).Error; err != nil {
		return internal("delete sessions", err)
	}
	s.forgetSessions(ctx, tokens...)
	return nil
}

// Sessions lists a user's sessions.
func (s *AuthService) Sessions(ctx context.Context, userID uint64) ([]model.UserSession, error) {
	var sessions []model.UserSession
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&sessions).Error; err != nil {
		return nil, internal("list sessions", err)
	}
	return sessions, nil
}

// RevokeSession ends one of the user's own sessions by ID.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID uint64) error {
	var session model.UserSession
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("Session not found.")
	}
	if err != nil {
		return internal("load session", err)
	}
	if session.UserID != userID {
		return forbidden("Not your session.")
	}
	if err := s.db.WithContext(ctx).Delete(&session).Error; err != nil {
		return internal("delete session", err)
	}
	s.forgetSessions(ctx, session.Token)
	return nil
}

// Me returns the profile of a user.
func (s *AuthService) Me(ctx context.Context, userID uint64) (*dto.MeResponse, error) {
	var user model.User
	err := s.db.WithContext(ctx).Preload("Group").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, internal("load user", err)
	}
	me := &dto.MeResponse{ID: user.ID, Username: user.Username, Email: user.Email}
	if user.Group != nil {
		me.Group = &dto.GroupRef{ID: user.Group.ID, Name: user.Group.Name}
	}
	return me, nil
}

// ChangePassword replaces the password after checking the old one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return internal("load user", err)
	}
	if !utils.CheckPwd(oldPassword, user.HashedPassword) {
		return badRequest("Incorrect old password.")
	}
	if newPassword == "" {
		return badRequest("New password cannot be empty.")
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("hashed_password", utils.GetPwd(newPassword)).Error; err != nil {
		return internal("update password", err)
	}
	return nil
}

// ChangeUsername renames a user.
func (s *AuthService) ChangeUsername(ctx context.Context, userID uint64, newUsername string) (string, error) {
	name := strings.TrimSpace(newUsername)
	if name == "" {
		return "", badRequest("Username cannot be empty.")
	}
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return "", internal("load user", err)
	}
	if name == user.Username {
		return "", badRequest("That is already your username.")
	}
	if _, ok := reservedUsernames[strings.ToLower(name)]; ok {
		return "", badRequest("This username is reserved.")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", name).Count(&count).Error; err != nil {
		return "", internal("check username", err)
	}
	if count > 0 {
		return "", badRequest("Username already taken.")
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("username", name).Error; err != nil {
		if repo.IsDuplicateKey(err) {
			return "", badRequest("Username already taken.")
		}
		return "", internal("update username", err)
	}
	s.settings.InvalidateIdentity(ctx, userID)
	return name, nil
}
