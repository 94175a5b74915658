// 包 oauth1 实现 OAuth 1.0a（HMAC-SHA1）请求签名，用于表单编码的 POST 请求。
// 每次签名都会生成新的 nonce 与时间戳；重试时必须重新签名，否则会被视为重放。
package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"
	nonceLen        = 32
	nonceAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ErrMissingCredentials 表示签名所需的四项凭据不完整（配置错误，应在启动时失败）。
var ErrMissingCredentials = errors.New("oauth1: missing credentials")

// Credentials 为 consumer 与 access token 两组密钥。
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// Validate 检查凭据是否齐全，返回缺失字段名。
func (c Credentials) Validate() error {
	var missing []string
	if c.ConsumerKey == "" {
		missing = append(missing, "consumer key")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "consumer secret")
	}
	if c.Token == "" {
		missing = append(missing, "access token")
	}
	if c.TokenSecret == "" {
		missing = append(missing, "access token secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// SignedRequest 为签名后的请求描述；Authorization 头只能使用一次。
type SignedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// Signer 生成 OAuth1 签名，可并发使用。
type Signer struct {
	creds Credentials
	now   func() time.Time
	nonce func() (string, error)

	mu     sync.Mutex
	lastTS int64
}

// Option 用于测试时替换时钟与 nonce 来源。
type Option func(*Signer)

func WithClock(now func() time.Time) Option { return func(s *Signer) { s.now = now } }

func WithNonceFunc(fn func() (string, error)) Option { return func(s *Signer) { s.nonce = fn } }

// New 创建 Signer；凭据缺失时直接返回错误。
func New(creds Credentials, opts ...Option) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	s := &Signer{creds: creds, now: time.Now, nonce: randomNonce}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Sign 对 method+rawURL+params 签名，返回带 Authorization 头与表单正文的请求。
// params 为将作为 POST 正文发送的参数，全部参与签名。
func (s *Signer) Sign(method, rawURL string, params url.Values) (SignedRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return SignedRequest{}, fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	nonce, ts, err := s.nextPair()
	if err != nil {
		return SignedRequest{}, err
	}
	oauth := map[string]string{
		"oauth_consumer_key":     s.creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        strconv.FormatInt(ts, 10),
		"oauth_token":            s.creds.Token,
		"oauth_version":          Version,
	}
	all := url.Values{}
	for k, v := range oauth {
		all.Set(k, v)
	}
	// 查询串参数同样参与签名
	for k, vs := range u.Query() {
		for _, v := range vs {
			all.Add(k, v)
		}
	}
	for k, vs := range params {
		for _, v := range vs {
			all.Add(k, v)
		}
	}
	method = strings.ToUpper(method)
	base := BaseString(method, baseURL(u), all)
	oauth["oauth_signature"] = Signature(base, s.creds.ConsumerSecret, s.creds.TokenSecret)

	h := http.Header{}
	h.Set("Authorization", AuthorizationHeader(oauth))
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return SignedRequest{
		Method: method,
		URL:    rawURL,
		Header: h,
		Body:   EncodeParams(params),
	}, nil
}

// nextPair 返回新的 nonce 与严格递增的时间戳。
func (s *Signer) nextPair() (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce, err := s.nonce()
	if err != nil {
		return "", 0, fmt.Errorf("generate nonce: %w", err)
	}
	ts := s.now().Unix()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return nonce, ts, nil
}

// BaseString 构造签名基串：METHOD&enc(url)&enc(sorted params)。
func BaseString(method, baseURL string, params url.Values) string {
	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(normalizeParams(params))
}

// Signature 计算 HMAC-SHA1 签名并以 base64 编码。
func Signature(base, consumerSecret, tokenSecret string) string {
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AuthorizationHeader 以固定顺序输出 OAuth 头：OAuth k="v", ...
func AuthorizationHeader(oauth map[string]string) string {
	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, PercentEncode(k)+`="`+PercentEncode(oauth[k])+`"`)
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// EncodeParams 将参数编码为表单正文（与签名使用相同的编码规则）。
func EncodeParams(params url.Values) string { return normalizeParams(params) }

// normalizeParams 编码后按 key、value 字典序排序并以 & 连接。
func normalizeParams(params url.Values) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, pair{PercentEncode(k), PercentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.k+"="+p.v)
	}
	return strings.Join(out, "&")
}

// PercentEncode 按 RFC 3986 编码：仅保留 A-Z a-z 0-9 - . _ ~。
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0F])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// baseURL 去掉查询串与片段，scheme/host 小写，省略默认端口。
func baseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func randomNonce() (string, error) {
	max := big.NewInt(int64(len(nonceAlphabet)))
	b := make([]byte, nonceLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = nonceAlphabet[n.Int64()]
	}
	return string(b), nil
}
