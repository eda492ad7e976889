package rpc

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var byteOrder binary.ByteOrder = binary.LittleEndian

const msgLenSize = 4

// 单帧上限，超过视为脏数据，连接应当关闭
const maxFrameSize = 16 << 20

// 信封消息类别
const (
	MsgKind_Request  = 1
	MsgKind_Event    = 2
	MsgKind_Response = 3
	MsgKind_Ack      = 4
)

// Envelope rpc线上信封。用户负载保持不透明的[]byte，
// 信封本身用protobuf wire format手工编解码，字段号固定。
type Envelope struct {
	Id      string // 关联id，响应/ack携带与请求相同的id
	Kind    uint32
	Key     string // 路由key的寻址字符串
	Payload []byte
	Error   string
	Ecode   int32
	Eos     bool // 流的末条消息
}

const (
	fieldId      = 1
	fieldKind    = 2
	fieldKey     = 3
	fieldPayload = 4
	fieldError   = 5
	fieldEcode   = 6
	fieldEos     = 7
)

// Marshal 编码信封
func (m *Envelope) Marshal() []byte {
	buf := make([]byte, 0, 64+len(m.Payload))
	if m.Id != "" {
		buf = protowire.AppendTag(buf, fieldId, protowire.BytesType)
		buf = protowire.AppendString(buf, m.Id)
	}
	if m.Kind != 0 {
		buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(m.Kind))
	}
	if m.Key != "" {
		buf = protowire.AppendTag(buf, fieldKey, protowire.BytesType)
		buf = protowire.AppendString(buf, m.Key)
	}
	if len(m.Payload) != 0 {
		buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
		buf = protowire.AppendBytes(buf, m.Payload)
	}
	if m.Error != "" {
		buf = protowire.AppendTag(buf, fieldError, protowire.BytesType)
		buf = protowire.AppendString(buf, m.Error)
	}
	if m.Ecode != 0 {
		buf = protowire.AppendTag(buf, fieldEcode, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(uint32(m.Ecode)))
	}
	if m.Eos {
		buf = protowire.AppendTag(buf, fieldEos, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

// Unmarshal 解码信封，未知字段跳过
func (m *Envelope) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case fieldId, fieldKey, fieldError:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			switch num {
			case fieldId:
				m.Id = v
			case fieldKey:
				m.Key = v
			case fieldError:
				m.Error = v
			}
		case fieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			m.Payload = append([]byte(nil), v...)
		case fieldKind, fieldEcode, fieldEos:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			switch num {
			case fieldKind:
				m.Kind = uint32(v)
			case fieldEcode:
				m.Ecode = int32(uint32(v))
			case fieldEos:
				m.Eos = v != 0
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// Frame 带长度头的完整帧
func (m *Envelope) Frame() [][]byte {
	data := m.Marshal()
	lenBuf := make([]byte, msgLenSize)
	byteOrder.PutUint32(lenBuf, uint32(len(data)))
	return [][]byte{lenBuf, data}
}

type frameReader interface {
	Peek(n int) ([]byte, error)
	Discard(n int) (int, error)
}

// readFrame 从连接缓冲里取一个完整帧，不足时返回(nil,nil)
func readFrame(r frameReader) (*Envelope, error) {
	lenBuf, err := r.Peek(msgLenSize)
	if err != nil {
		return nil, nil
	}
	dataLen := int(byteOrder.Uint32(lenBuf))
	if dataLen > maxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds limit %d", dataLen, maxFrameSize)
	}
	full, err := r.Peek(msgLenSize + dataLen)
	if err != nil {
		return nil, nil
	}
	msg := &Envelope{}
	if err := msg.Unmarshal(full[msgLenSize:]); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if _, err := r.Discard(msgLenSize + dataLen); err != nil {
		return nil, err
	}
	return msg, nil
}
