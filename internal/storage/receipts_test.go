package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	putErr  error
	presign time.Duration
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]string{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Bucket+"/"+*in.Key] = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var po s3.PresignOptions
	for _, fn := range optFns {
		fn(&po)
	}
	f.presign = po.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Key, Method: "GET"}, nil
}

func TestKey(t *testing.T) {
	key, err := Key("receipts", "r-1", "a1", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "receipts/r-1/receipt-a1.jpg", key)

	key, err = Key("receipts", "r-1", "a1", "application/pdf; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "receipts/r-1/receipt-a1.pdf", key)

	_, err = Key("receipts", "r-1", "a1", "image/gif")
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)

	_, err = Key("receipts", "r-1", "", "image/png")
	assert.Error(t, err)
}

func TestPutAndDelete(t *testing.T) {
	fake := newFakeS3()
	store := NewS3ReceiptStore(fake, fake, "bucket", "receipts", 0)
	n := 0
	store.newAttempt = func() string {
		n++
		return fmt.Sprintf("a%d", n)
	}

	ref, err := store.Put(context.Background(), "r-1", "image/png", strings.NewReader("png-bytes"), 9)
	require.NoError(t, err)
	assert.Equal(t, "receipts/r-1/receipt-a1.png", ref)
	assert.Equal(t, "png-bytes", fake.objects["bucket/receipts/r-1/receipt-a1.png"])

	// a second attempt for the same reservation never touches the first object
	retry, err := store.Put(context.Background(), "r-1", "image/png", strings.NewReader("retry"), 5)
	require.NoError(t, err)
	assert.Equal(t, "receipts/r-1/receipt-a2.png", retry)
	require.NoError(t, store.Delete(context.Background(), retry))
	assert.Equal(t, "png-bytes", fake.objects["bucket/receipts/r-1/receipt-a1.png"])

	require.NoError(t, store.Delete(context.Background(), ref))
	assert.Empty(t, fake.objects)
}

func TestPutUsesDistinctKeys(t *testing.T) {
	fake := newFakeS3()
	store := NewS3ReceiptStore(fake, fake, "bucket", "receipts", 0)

	a, err := store.Put(context.Background(), "r-1", "application/pdf", strings.NewReader("a"), 1)
	require.NoError(t, err)
	b, err := store.Put(context.Background(), "r-1", "application/pdf", strings.NewReader("b"), 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "receipts/r-1/receipt-"))
	assert.Len(t, fake.objects, 2)
}

func TestPutFailure(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	store := NewS3ReceiptStore(fake, fake, "bucket", "receipts", time.Hour)

	_, err := store.Put(context.Background(), "r-1", "application/pdf", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.Empty(t, fake.objects)
}

func TestSignedURL(t *testing.T) {
	fake := newFakeS3()
	store := NewS3ReceiptStore(fake, fake, "bucket", "receipts", 0)

	before := time.Now()
	url, exp, err := store.SignedURL(context.Background(), "receipts/r-1/receipt.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/receipts/r-1/receipt.pdf", url)
	assert.Equal(t, time.Hour, fake.presign)
	assert.WithinDuration(t, before.Add(time.Hour), exp, 5*time.Second)
}
