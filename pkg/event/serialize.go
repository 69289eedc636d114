package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Frame は1件のストリームイベント。
type Frame struct {
	// Name はイベント名。
	Name Name `json:"name"`
	// Data はJSONペイロード。改行を含まない1行のJSONであること。
	Data json.RawMessage `json:"data"`
}

// ErrMalformedFrame はフレームの形式が不正な場合のエラー。
var ErrMalformedFrame = errors.New("フレームの形式が不正です")

// New はペイロードをシリアライズして新しいフレームを生成する。
func New(name Name, payload any) (Frame, error) {
	if !name.Valid() {
		return Frame{}, fmt.Errorf("未知のイベント名 %q: %w", name, ErrMalformedFrame)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return Frame{Name: name, Data: data}, nil
}

// WriteTo はフレームをワイヤ形式で書き込む。
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(len(f.Name) + len(f.Data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(string(f.Name))
	buf.WriteString("\ndata: ")
	buf.Write(f.Data)
	buf.WriteString("\n\n")
	return buf.WriteTo(w)
}

// DecodeData はフレームのDataを指定された型にデシリアライズする。
func DecodeData[T any](f Frame) (*T, error) {
	var data T
	if err := json.Unmarshal(f.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Reader はワイヤ形式のストリームからフレームを順に読み出す。
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader は新しいReaderを生成する。
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Reader{scanner: s}
}

// Next は次のフレームを返す。ストリーム終端ではio.EOFを返す。
// ":"で始まるコメント行は読み飛ばす。
func (r *Reader) Next() (Frame, error) {
	var (
		f       Frame
		hasName bool
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if !hasName && !hasData {
				continue
			}
			if !hasName || !hasData {
				return Frame{}, ErrMalformedFrame
			}
			return f, nil
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			f.Name = Name(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
			hasName = true
		case strings.HasPrefix(line, "data:"):
			f.Data = json.RawMessage(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		default:
			return Frame{}, fmt.Errorf("不明な行 %q: %w", line, ErrMalformedFrame)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if hasName || hasData {
		return Frame{}, io.ErrUnexpectedEOF
	}
	return Frame{}, io.EOF
}
