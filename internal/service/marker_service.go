package service

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"io"
	"log/slog"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"petpals/internal/blobstore"
	"petpals/internal/docstore"
	"petpals/internal/models"
	"petpals/internal/repository"
	"petpals/internal/validation"
)

// Marker formats.
const (
	MarkerPNG  = "png"
	MarkerWebP = "webp"
)

// Marker size bounds in pixels.
const (
	DefaultMarkerSize = 64
	MinMarkerSize     = 16
	MaxMarkerSize     = 256
)

// maxAvatarBytes bounds how much of a stored avatar is read for a marker.
const maxAvatarBytes = 16 << 20

// Marker is an encoded map marker image.
type Marker struct {
	Data        []byte
	ContentType string
	Placeholder bool
}

// MarkerService renders circular map markers from pet avatars.
type MarkerService struct {
	profiles repository.ProfileRepository
	blobs    blobstore.Store
}

func NewMarkerService(profiles repository.ProfileRepository, blobs blobstore.Store) *MarkerService {
	return &MarkerService{profiles: profiles, blobs: blobs}
}

// Render returns the user's avatar center-cropped, scaled to size and masked
// to a circle. Users without a readable avatar get a solid placeholder disc.
func (s *MarkerService) Render(ctx context.Context, userID string, size int, format string) (*Marker, error) {
	if size == 0 {
		size = DefaultMarkerSize
	}
	if size < MinMarkerSize || size > MaxMarkerSize {
		return nil, models.NewValidationError("size must be between 16 and 256")
	}
	if format == "" {
		format = MarkerPNG
	}
	if format != MarkerPNG && format != MarkerWebP {
		return nil, models.NewValidationError("format must be png or webp")
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, storeError(err, "Profile", userID)
	}

	var img image.Image
	placeholder := true
	if profile != nil && profile.PetImage != "" {
		if avatar, err := s.loadAvatar(ctx, profile.PetImage); err == nil {
			img = circleCrop(avatar, size)
			placeholder = false
		} else {
			slog.WarnContext(ctx, "marker avatar unavailable, using placeholder",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}
	if placeholder {
		img = placeholderDisc(userID, size)
	}

	buf := bytes.NewBuffer(nil)
	m := &Marker{Placeholder: placeholder}
	switch format {
	case MarkerWebP:
		if err := webp.Encode(buf, img, &webp.Options{Lossless: true}); err != nil {
			return nil, models.NewInternalError(err)
		}
		m.ContentType = "image/webp"
	default:
		if err := png.Encode(buf, img); err != nil {
			return nil, models.NewInternalError(err)
		}
		m.ContentType = "image/png"
	}
	m.Data = buf.Bytes()
	return m, nil
}

func (s *MarkerService) loadAvatar(ctx context.Context, url string) (image.Image, error) {
	ref, err := s.blobs.RefFromURL(url)
	if err != nil {
		return nil, err
	}
	rc, err := s.blobs.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data := bytes.NewBuffer(nil)
	if _, err := data.ReadFrom(io.LimitReader(rc, maxAvatarBytes)); err != nil {
		return nil, err
	}
	if err := validation.CheckImageDimensions(bytes.NewReader(data.Bytes())); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(data)
	return img, err
}

// circleCrop takes the largest centered square of src, scales it to size and
// clears everything outside the inscribed circle.
func circleCrop(src image.Image, size int) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	sq := image.Rect(0, 0, side, side).Add(image.Point{
		X: b.Min.X + (b.Dx()-side)/2,
		Y: b.Min.Y + (b.Dy()-side)/2,
	})

	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sq, xdraw.Src, nil)

	out := image.NewRGBA(scaled.Bounds())
	draw.DrawMask(out, out.Bounds(), scaled, image.Point{}, &circleMask{size: size}, image.Point{}, draw.Over)
	return out
}

// placeholderDisc is a filled circle whose color is stable per user.
func placeholderDisc(userID string, size int) image.Image {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	v := h.Sum32()
	fill := &image.Uniform{C: color.RGBA{
		R: uint8(96 + v%128),
		G: uint8(96 + (v>>8)%128),
		B: uint8(96 + (v>>16)%128),
		A: 0xff,
	}}

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.DrawMask(out, out.Bounds(), fill, image.Point{}, &circleMask{size: size}, image.Point{}, draw.Over)
	return out
}

// circleMask is an alpha mask of the circle inscribed in a size×size square.
type circleMask struct {
	size int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle { return image.Rect(0, 0, m.size, m.size) }

func (m *circleMask) At(x, y int) color.Color {
	r := float64(m.size) / 2
	dx := float64(x) + 0.5 - r
	dy := float64(y) + 0.5 - r
	if dx*dx+dy*dy <= r*r {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{A: 0}
}
