package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// SaveModelAtomic はモデルをファイルへ原子的に保存する
//
// 同じディレクトリに一時ファイルを作成し、エンコード・fsync・クローズの後に
// 目的のパスへリネームする。失敗時は一時ファイルを必ず削除するため、
// 既存のファイルが中途半端な内容で上書きされることはない。
//
// 使用例:
//
//	err := model.SaveModelAtomic("models/quick_start_model.gob", header, body)
func SaveModelAtomic(filename string, values ...interface{}) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = SaveModelToWriter(tmp, values...); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err = os.Rename(tmpName, filename); err != nil {
		return errors.Wrapf(err, "failed to rename temp file to %s", filename)
	}
	return nil
}

// LoadModel はファイルから gob 値を順に読み込む
//
// 使用例:
//
//	var header ArtifactHeader
//	var body pipelineState
//	err := model.LoadModel("model.gob", &header, &body)
func LoadModel(filename string, values ...interface{}) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModelFromReader(file, values...)
}

// SaveModelToWriter は値を順に gob ストリームとして w に書き込む
func SaveModelToWriter(w io.Writer, values ...interface{}) error {
	encoder := gob.NewEncoder(w)
	for _, v := range values {
		if err := encoder.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode model")
		}
	}
	return nil
}

// LoadModelFromReader は r から gob 値を順に読み込む
func LoadModelFromReader(r io.Reader, values ...interface{}) error {
	decoder := gob.NewDecoder(r)
	for _, v := range values {
		if err := decoder.Decode(v); err != nil {
			return errors.Wrap(err, "failed to decode model")
		}
	}
	return nil
}
