package overlay_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cardcast/internal/overlay"
	"cardcast/internal/testsupport"
)

func opts() overlay.Options {
	return overlay.Options{Width: 4, Height: 4, FPS: 10}
}

func encodeGIF(t *testing.T, delays []int, colors []color.RGBA) []byte {
	t.Helper()
	anim := &gif.GIF{Config: image.Config{Width: 2, Height: 2}}
	for i, c := range colors {
		palette := color.Palette{color.RGBA{A: 0xff}, c}
		frame := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
		for p := range frame.Pix {
			frame.Pix[p] = 1
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delays[i])
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

func TestStaticSourceLoops(t *testing.T) {
	a := testsupport.SolidImage(2, 2, color.RGBA{R: 1, A: 0xff})
	b := testsupport.SolidImage(2, 2, color.RGBA{R: 2, A: 0xff})
	src, err := overlay.NewStaticSource(a, b)
	if err != nil {
		t.Fatalf("NewStaticSource: %v", err)
	}
	for index, want := range map[int]image.Image{0: a, 1: b, 2: a, 7: b} {
		got, err := src.FrameAt(index)
		if err != nil {
			t.Fatalf("FrameAt(%d): %v", index, err)
		}
		if got != want {
			t.Fatalf("FrameAt(%d) returned the wrong frame", index)
		}
	}
	if _, err := src.FrameAt(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
	if _, err := overlay.NewStaticSource(); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestGIFSourceFollowsDelaysAndLoops(t *testing.T) {
	red := color.RGBA{R: 0xff, A: 0xff}
	blue := color.RGBA{B: 0xff, A: 0xff}
	// 200ms red then 100ms blue; at 10fps that is 2 red frames then 1 blue.
	data := encodeGIF(t, []int{20, 10}, []color.RGBA{red, blue})
	src, err := overlay.NewGIFSource(bytes.NewReader(data), opts())
	if err != nil {
		t.Fatalf("NewGIFSource: %v", err)
	}
	if src.Len() != 2 || src.LoopDuration().Milliseconds() != 300 {
		t.Fatalf("unexpected gif timing: frames=%d loop=%v", src.Len(), src.LoopDuration())
	}

	want := []color.RGBA{red, red, blue, red, red, blue}
	for index, c := range want {
		frame, err := src.FrameAt(index)
		if err != nil {
			t.Fatalf("FrameAt(%d): %v", index, err)
		}
		if b := frame.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
			t.Fatalf("frame not scaled to target: %v", b)
		}
		r, _, bl, _ := frame.At(2, 2).RGBA()
		if uint8(r>>8) != c.R || uint8(bl>>8) != c.B {
			t.Fatalf("frame %d: got r=%d b=%d want %+v", index, r>>8, bl>>8, c)
		}
	}
}

func TestOpenSniffsFormats(t *testing.T) {
	dir := t.TempDir()

	gifPath := filepath.Join(dir, "sparkle.gif")
	if err := os.WriteFile(gifPath, encodeGIF(t, []int{5}, []color.RGBA{{G: 0xff, A: 0xff}}), 0o644); err != nil {
		t.Fatalf("write gif: %v", err)
	}
	pngPath := filepath.Join(dir, "still.png")
	if err := os.WriteFile(pngPath, testsupport.PNGBytes(t, testsupport.SolidImage(8, 8, color.RGBA{A: 0xff})), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}

	src, err := overlay.Open(context.Background(), gifPath, opts())
	if err != nil {
		t.Fatalf("Open gif: %v", err)
	}
	if _, ok := src.(*overlay.GIFSource); !ok {
		t.Fatalf("expected GIFSource, got %T", src)
	}

	still, err := overlay.Open(context.Background(), pngPath, opts())
	if err != nil {
		t.Fatalf("Open png: %v", err)
	}
	frame, err := still.FrameAt(12)
	if err != nil {
		t.Fatalf("FrameAt: %v", err)
	}
	if frame.Bounds().Dx() != 4 {
		t.Fatalf("expected still scaled to 4px, got %v", frame.Bounds())
	}

	kind, err := overlay.Sniff(pngPath)
	if err != nil || kind != overlay.KindStill {
		t.Fatalf("Sniff(png) = %q, %v", kind, err)
	}
	mp4Path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(mp4Path, []byte("\x00\x00\x00\x18ftypmp42"), 0o644); err != nil {
		t.Fatalf("write mp4: %v", err)
	}
	if kind, err := overlay.Sniff(mp4Path); err != nil || kind != overlay.KindVideo {
		t.Fatalf("Sniff(mp4) = %q, %v", kind, err)
	}
}

func TestFFmpegSourceReadsSequentialFrames(t *testing.T) {
	// 4x4 RGBA frames are 64 bytes; emit three frames of increasing value.
	script := `i=1
while [ $i -le 3 ]; do
  head -c 64 /dev/zero | tr '\000' "\\00$i"
  i=$((i+1))
done
`
	binary := testsupport.StubBinary(t, "ffmpeg", script)
	o := opts()
	o.FFmpegBinary = binary
	src, err := overlay.NewFFmpegSource(context.Background(), "/clips/sparkle.mp4", o)
	if err != nil {
		t.Fatalf("NewFFmpegSource: %v", err)
	}
	defer src.Close()

	for index, want := range []uint8{1, 1, 3} {
		lookup := []int{0, 0, 2}[index]
		frame, err := src.FrameAt(lookup)
		if err != nil {
			t.Fatalf("FrameAt(%d): %v", lookup, err)
		}
		if got := frame.(*image.RGBA).Pix[0]; got != want {
			t.Fatalf("FrameAt(%d) first byte = %d, want %d", lookup, got, want)
		}
	}
	if _, err := src.FrameAt(0); err == nil {
		t.Fatal("expected error when seeking backwards")
	}
	if _, err := src.FrameAt(5); err == nil {
		t.Fatal("expected error when the decoder runs dry")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.FrameAt(6); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestDecodeArgsLoopAndResample(t *testing.T) {
	args := strings.Join(overlay.DecodeArgs("/clips/a.mp4", overlay.Options{Width: 720, Height: 1280, FPS: 30}), " ")
	for _, want := range []string{"-stream_loop -1 -i /clips/a.mp4", "scale=720:1280,fps=30", "-pix_fmt rgba", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %s", want, args)
		}
	}
}
