package presence

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/tokmz/spaces/pkg/errors"
)

// Codec 帧编解码器
// 解码只做结构与类型校验，不访问任何状态
type Codec struct {
	validate      *validator.Validate
	maxChatLength int
}

// NewCodec 创建编解码器，maxChatLength 为聊天消息最大字符数（按 rune 计）
func NewCodec(maxChatLength int) *Codec {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if maxChatLength <= 0 {
		maxChatLength = DefaultMaxChatLength
	}
	return &Codec{validate: v, maxChatLength: maxChatLength}
}

// 入站载荷的解码形态，指针字段用于区分缺失与零值
type (
	positionWire struct {
		X         *float64 `json:"x" validate:"required"`
		Y         *float64 `json:"y" validate:"required"`
		Direction *string  `json:"direction" validate:"required,max=32"`
	}

	joinWire struct {
		SpaceID         *string       `json:"spaceId" validate:"required,min=1,max=128"`
		UserID          *string       `json:"userId" validate:"required,min=1,max=128"`
		InitialPosition *positionWire `json:"initialPosition" validate:"required"`
	}

	actionWire struct {
		Action   *string         `json:"action" validate:"required,min=1,max=64"`
		Position *positionWire   `json:"position"`
		Data     json.RawMessage `json:"data"`
	}

	chatWire struct {
		Message *string `json:"message" validate:"required"`
	}

	signalWire struct {
		TargetUserID *string         `json:"targetUserId" validate:"required,min=1,max=128"`
		Signal       json.RawMessage `json:"signal"`
	}
)

func (p *positionWire) position() Position {
	return Position{X: *p.X, Y: *p.Y, Direction: *p.Direction}
}

// Decode 解析一帧入站数据
//
// 非 JSON、顶层不是对象或 type 不是字符串返回 ErrMalformedPayload；
// type 未知返回 ErrUnknownEventType，先于载荷检查；
// 字段缺失或类型错误返回 *FieldError（errors.Is ErrInvalidPayload）。
func (c *Codec) Decode(raw []byte) (Event, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil || env == nil {
		return nil, ErrMalformedPayload
	}

	var t string
	if err := json.Unmarshal(env["type"], &t); err != nil || isNull(env["type"]) {
		return nil, ErrMalformedPayload.WithMessage("type must be a string")
	}
	if !EventType(t).Inbound() {
		return nil, ErrUnknownEventType.WithMessage("unknown event type " + t)
	}

	payload := env["payload"]
	if len(payload) == 0 || isNull(payload) {
		payload = json.RawMessage("{}")
	} else if firstByte(payload) != '{' {
		return nil, invalidField("payload", "must be an object")
	}

	switch EventType(t) {
	case EventJoinSpace:
		var w joinWire
		if err := c.decodePayload(payload, &w); err != nil {
			return nil, err
		}
		return &JoinSpace{SpaceID: *w.SpaceID, UserID: *w.UserID, InitialPosition: w.InitialPosition.position()}, nil

	case EventLeaveSpace:
		return &LeaveSpace{}, nil

	case EventMove:
		var w positionWire
		if err := c.decodePayload(payload, &w); err != nil {
			return nil, err
		}
		return &Move{Position: w.position()}, nil

	case EventAction:
		var w actionWire
		if err := c.decodePayload(payload, &w); err != nil {
			return nil, err
		}
		ev := &Action{Action: *w.Action}
		if w.Position != nil {
			p := w.Position.position()
			ev.Position = &p
		}
		if len(w.Data) > 0 && !isNull(w.Data) {
			ev.Data = w.Data
		}
		return ev, nil

	case EventChat:
		var w chatWire
		if err := c.decodePayload(payload, &w); err != nil {
			return nil, err
		}
		n := utf8.RuneCountInString(*w.Message)
		if n == 0 {
			return nil, invalidField("message", "must not be empty")
		}
		if n > c.maxChatLength {
			return nil, invalidField("message", "exceeds maximum length")
		}
		return &Chat{Message: *w.Message}, nil

	case EventAudio, EventVideo:
		var w signalWire
		if err := c.decodePayload(payload, &w); err != nil {
			return nil, err
		}
		if len(w.Signal) == 0 || isNull(w.Signal) {
			return nil, missingField("signal")
		}
		return &Signal{Kind: EventType(t), TargetUserID: *w.TargetUserID, Signal: w.Signal}, nil
	}

	return nil, ErrUnknownEventType.WithMessage("unknown event type " + t)
}

// decodePayload 解码并校验载荷
func (c *Codec) decodePayload(payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		var te *json.UnmarshalTypeError
		if stderrors.As(err, &te) && te.Field != "" {
			return invalidField(te.Field, "must be a "+jsonKind(te.Type))
		}
		return ErrMalformedPayload.WithError(err)
	}

	if err := c.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := fe.Namespace()
			if i := strings.IndexByte(field, '.'); i >= 0 {
				field = field[i+1:]
			}
			if fe.Tag() == "required" {
				return missingField(field)
			}
			return invalidField(field, "failed "+fe.Tag()+" check")
		}
		return ErrInvalidPayload.WithError(err)
	}
	return nil
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Bool:
		return "boolean"
	}
	return t.Kind().String()
}

func isNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

func firstByte(b []byte) byte {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// Encode 将入站事件编码为线上帧，Decode(Encode(e)) 与 e 等价
func (c *Codec) Encode(ev Event) ([]byte, error) {
	var payload any = ev
	if _, ok := ev.(*LeaveSpace); ok {
		payload = struct{}{}
	}
	return encodeFrame(ev.Type(), payload)
}

// EncodeBroadcast 编码出站广播帧
func (c *Codec) EncodeBroadcast(t EventType, payload any) ([]byte, error) {
	return encodeFrame(t, payload)
}

// EncodeResponse 编码直接回复帧
func (c *Codec) EncodeResponse(r *Response) ([]byte, error) {
	return marshal(r)
}

// EncodeSignal 编码音视频转发帧，signal 按原样拼接
func (c *Codec) EncodeSignal(kind EventType, fromUserID, spaceID string, signal json.RawMessage) ([]byte, error) {
	head, err := marshal(struct {
		Type EventType `json:"type"`
	}{kind})
	if err != nil {
		return nil, err
	}
	from, err := marshal(fromUserID)
	if err != nil {
		return nil, err
	}
	space, err := marshal(spaceID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(head) + len(from) + len(space) + len(signal) + 48)
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"payload":{"fromUserId":`)
	buf.Write(from)
	buf.WriteString(`,"spaceId":`)
	buf.Write(space)
	buf.WriteString(`,"signal":`)
	buf.Write(signal)
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

type frame struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

func encodeFrame(t EventType, payload any) ([]byte, error) {
	return marshal(frame{Type: t, Payload: payload})
}

// marshal 不做 HTML 转义
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Success 构造成功回复
func Success(t EventType, message string, data any) *Response {
	return &Response{
		Status:      StatusSuccess,
		RequestType: t,
		Message:     message,
		Data:        data,
	}
}

// Failure 按错误分类构造失败回复
func Failure(t EventType, err error) *Response {
	r := &Response{Status: StatusFailed, RequestType: t}

	var fe *FieldError
	if stderrors.As(err, &fe) {
		r.Code = ErrInvalidPayload.Reason
		r.Field = fe.Field
		r.Error = fe.Reason
		return r
	}

	e, ok := errors.From(err)
	if !ok {
		e = ErrInternal
	}
	r.Code = e.Reason
	r.Error = e.Message
	r.Retryable = IsRetryable(e)
	return r
}
