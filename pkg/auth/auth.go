package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tokmz/spaces/pkg/errors"
)

var (
	ErrMissingToken  = errors.New(4011, "MISSING_TOKEN", "missing access token", http.StatusUnauthorized)
	ErrInvalidToken  = errors.New(4012, "INVALID_TOKEN", "invalid access token", http.StatusUnauthorized)
	ErrTokenExpired  = errors.New(4013, "TOKEN_EXPIRED", "access token expired", http.StatusUnauthorized)
	ErrInvalidConfig = errors.New(4014, "AUTH_INVALID_CONFIG", "auth invalid config", http.StatusInternalServerError)
)

// Config 鉴权配置
type Config struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`   // 非空时校验 iss
	Audience string        `mapstructure:"audience"` // 非空时校验 aud
	Required bool          `mapstructure:"required"` // 为 true 时拒绝无令牌的升级请求
	Leeway   time.Duration `mapstructure:"leeway"`
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Required && c.Secret == "" {
		return ErrInvalidConfig.WithMessage("auth.required needs a secret")
	}
	return nil
}

// Enabled 是否配置了密钥
func (c *Config) Enabled() bool { return c.Secret != "" }

// Claims 令牌声明，sub 为用户标识
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Verifier HS256 令牌校验，仅校验不签发业务令牌
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	issuer string
	aud    string
}

// NewVerifier 创建校验器
func NewVerifier(cfg *Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
		issuer: cfg.Issuer,
		aud:    cfg.Audience,
	}
}

// Verify 校验令牌并返回声明
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired.WithError(err)
		}
		return nil, ErrInvalidToken.WithError(err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken.WithMessage("token has no subject")
	}
	return claims, nil
}

// Sign 签发令牌，用于测试与运维脚本
func (v *Verifier) Sign(subject, username string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrInvalidToken.WithMessage("empty subject")
	}
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.aud != "" {
		claims.Audience = jwt.ClaimStrings{v.aud}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest 依次读取 Authorization: Bearer 头与 token 查询参数
// 浏览器 WebSocket 无法携带请求头
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}

// Authenticate 校验请求携带的令牌
// 未携带令牌且非强制时返回空 subject 与 nil
func (v *Verifier) Authenticate(r *http.Request, required bool) (string, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		if required {
			return "", ErrMissingToken
		}
		return "", nil
	}
	claims, err := v.Verify(tok)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

type ctxKey struct{}

// WithSubject 将用户标识放入 context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKey{}, subject)
}

// Subject 读取 context 中的用户标识
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}
