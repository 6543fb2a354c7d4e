package model

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/sbikde/pkg/errors"
)

// fileMagic prefixes every saved model so that LoadModel can reject files
// that were not written by SaveModel before gob sees them.
var fileMagic = []byte("SBIKDE\x00\x01")

// SaveModel はモデルをファイルに保存する
//
// 一時ファイルに書き込んでから rename するため、失敗時に既存のファイルは壊れない。
// モデルは encoding/gob でエンコードされる。非公開フィールドを持つ推定器は
// encoding.BinaryMarshaler を実装すること。
//
// 使用例:
//
//	est, _ := kde.New(kde.WithWhitening(kde.WhiteningZCA))
//	// ... 学習 ...
//	err := model.SaveModel(est, "model.gob")
func SaveModel(model interface{}, filename string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*")
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := SaveModelToWriter(model, w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write %s", filename)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", filename)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), filename), "failed to replace %s", filename)
}

// LoadModel はファイルからモデルを読み込む
//
// 使用例:
//
//	est := &kde.ConditionalKDE{}
//	err := model.LoadModel(est, "model.gob")
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return errors.Wrapf(LoadModelFromReader(model, bufio.NewReader(file)), "loading %s", filename)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if _, err := w.Write(fileMagic); err != nil {
		return errors.Wrap(err, "failed to write model header")
	}
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	header := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, header); err != nil || !bytes.Equal(header, fileMagic) {
		return errors.NewValidationError("model", "not a saved sbikde model", nil)
	}
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
