package media_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/cadenza/internal/adapters/media"
	"github.com/okian/cadenza/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// copyRunner mimics ffmpeg by writing a marker plus the input to the output path.
func copyRunner(calls *[][]string) media.Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, append([]string{name}, args...))
		var in string
		for i, a := range args {
			if a == "-i" {
				in = args[i+1]
			}
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, err
		}
		return nil, os.WriteFile(args[len(args)-1], append([]byte("RIFF"), data...), 0o600)
	}
}

func failRunner(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return []byte("Invalid data found when processing input\n"), errors.New("exit status 1")
}

func readRef(t *testing.T, s media.ArtifactStore, ref string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), ref)
	if err != nil {
		t.Fatalf("open %s: %v", ref, err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	return string(b)
}

func TestFSStore(t *testing.T) {
	Convey("Given a filesystem artifact store", t, func() {
		ctx := context.Background()
		root := t.TempDir()
		s, err := media.NewFSStore(root)
		So(err, ShouldBeNil)

		Convey("When putting an artifact", func() {
			So(s.Put(ctx, "rec-1/canonical.wav", strings.NewReader("pcm"), 3, "audio/wav"), ShouldBeNil)

			Convey("Then it can be read back", func() {
				So(readRef(t, s, "rec-1/canonical.wav"), ShouldEqual, "pcm")
			})

			Convey("And deleting it", func() {
				So(s.Delete(ctx, "rec-1/canonical.wav"), ShouldBeNil)

				Convey("Then it should be gone along with its directory", func() {
					_, err := s.Open(ctx, "rec-1/canonical.wav")
					So(errors.Is(err, media.ErrArtifactNotFound), ShouldBeTrue)
					_, statErr := os.Stat(filepath.Join(root, "rec-1"))
					So(os.IsNotExist(statErr), ShouldBeTrue)
				})

				Convey("Then deleting again should succeed", func() {
					So(s.Delete(ctx, "rec-1/canonical.wav"), ShouldBeNil)
				})
			})
		})

		Convey("When a reference escapes the root", func() {
			for _, ref := range []string{"../outside", "/etc/passwd", "", "a/../../b", `a\b`} {
				err := s.Put(ctx, ref, strings.NewReader("x"), 1, "")
				So(errors.Is(err, media.ErrInvalidRef), ShouldBeTrue)
			}
		})
	})
}

func TestFFmpegNormalizer(t *testing.T) {
	Convey("Given a normalizer over a filesystem store", t, func() {
		ctx := context.Background()
		s, err := media.NewFSStore(t.TempDir())
		So(err, ShouldBeNil)
		var calls [][]string

		Convey("When ffmpeg succeeds", func() {
			n := media.NewFFmpegNormalizer(s,
				media.WithRunner(copyRunner(&calls)),
				media.WithFFmpegPath("/opt/ffmpeg"),
			)
			art, err := n.Normalize(ctx, "rec-1", []byte("ID3 mp3 data"))

			Convey("Then the canonical artifact should be stored", func() {
				So(err, ShouldBeNil)
				So(art.CanonicalRef, ShouldEqual, "rec-1/canonical.wav")
				So(readRef(t, s, art.CanonicalRef), ShouldEqual, "RIFFID3 mp3 data")
			})

			Convey("Then the original should be removed", func() {
				So(art.OriginalRef, ShouldBeEmpty)
				_, err := s.Open(ctx, "rec-1/original")
				So(errors.Is(err, media.ErrArtifactNotFound), ShouldBeTrue)
			})

			Convey("Then ffmpeg should be asked for mono 16 kHz pcm wav", func() {
				So(len(calls), ShouldEqual, 1)
				args := strings.Join(calls[0], " ")
				So(calls[0][0], ShouldEqual, "/opt/ffmpeg")
				So(args, ShouldContainSubstring, "-ac 1")
				So(args, ShouldContainSubstring, "-ar 16000")
				So(args, ShouldContainSubstring, "-c:a pcm_s16le")
				So(args, ShouldContainSubstring, "-f wav")
			})
		})

		Convey("When a different encoding is configured", func() {
			n := media.NewFFmpegNormalizer(s,
				media.WithRunner(copyRunner(&calls)),
				media.WithEncoding("flac", "flac"),
				media.WithSampleRate(22050),
			)
			art, err := n.Normalize(ctx, "rec-2", []byte("data"))

			Convey("Then the reference and arguments should follow it", func() {
				So(err, ShouldBeNil)
				So(art.CanonicalRef, ShouldEqual, "rec-2/canonical.flac")
				So(strings.Join(calls[0], " "), ShouldContainSubstring, "-ar 22050")
			})
		})

		Convey("When ffmpeg fails", func() {
			n := media.NewFFmpegNormalizer(s, media.WithRunner(failRunner))
			art, err := n.Normalize(ctx, "rec-3", []byte("not audio"))

			Convey("Then a conversion error should carry ffmpeg's stderr", func() {
				So(errors.Is(err, media.ErrConversion), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "Invalid data found")
			})

			Convey("Then the original should be kept as fallback", func() {
				So(art.CanonicalRef, ShouldBeEmpty)
				So(art.OriginalRef, ShouldEqual, "rec-3/original")
				So(readRef(t, s, art.OriginalRef), ShouldEqual, "not audio")
			})
		})

		Convey("When the upload is empty", func() {
			n := media.NewFFmpegNormalizer(s, media.WithRunner(copyRunner(&calls)))
			art, err := n.Normalize(ctx, "rec-4", nil)

			Convey("Then it should fail without touching storage", func() {
				So(errors.Is(err, media.ErrConversion), ShouldBeTrue)
				So(art, ShouldResemble, media.Artifact{})
				So(calls, ShouldBeEmpty)
			})
		})

		Convey("When ffmpeg writes nothing", func() {
			n := media.NewFFmpegNormalizer(s, media.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
				return nil, nil
			}))
			_, err := n.Normalize(ctx, "rec-5", bytes.Repeat([]byte{1}, 8))

			Convey("Then it should be a conversion error", func() {
				So(errors.Is(err, media.ErrConversion), ShouldBeTrue)
			})
		})
	})
}

func TestNewMinioStore(t *testing.T) {
	Convey("Given minio options", t, func() {
		Convey("When endpoint or bucket is missing", func() {
			_, err := media.NewMinioStore(media.MinioOptions{Endpoint: "localhost:9000"})

			Convey("Then construction should fail", func() {
				So(errors.Is(err, media.ErrStorage), ShouldBeTrue)
			})
		})

		Convey("When the options are complete", func() {
			s, err := media.NewMinioStore(media.MinioOptions{
				Endpoint:  "localhost:9000",
				AccessKey: "minio",
				SecretKey: "minio123",
				Bucket:    "cadenza",
				Region:    "us-east-1",
			})

			Convey("Then a store should be built without contacting the server", func() {
				So(err, ShouldBeNil)
				So(s, ShouldNotBeNil)
			})

			Convey("Then invalid references should be rejected locally", func() {
				err := s.Delete(context.Background(), "../escape")
				So(errors.Is(err, media.ErrInvalidRef), ShouldBeTrue)
			})
		})
	})
}
