package ringbuffer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateError(t *testing.T) {
	_, err := New[[]byte](1000)
	require.EqualError(t, err, "size must be a power of two")

	_, err = New[[]byte](0)
	require.EqualError(t, err, "size must be a power of two")
}

func TestPushBeforePull(t *testing.T) {
	r, err := New[[]byte](1024)
	require.NoError(t, err)
	defer r.Close()

	ok := r.Push(bytes.Repeat([]byte{1, 2, 3, 4}, 1024/4))
	require.Equal(t, true, ok)
	require.Equal(t, 1, r.Len())

	ret, ok := r.Pull()
	require.Equal(t, true, ok)
	require.Equal(t, bytes.Repeat([]byte{1, 2, 3, 4}, 1024/4), ret)
	require.Equal(t, 0, r.Len())
}

func TestPullEmpty(t *testing.T) {
	r, err := New[int](4)
	require.NoError(t, err)

	_, ok := r.Pull()
	require.Equal(t, false, ok)
}

func TestPullWaitBeforePush(t *testing.T) {
	r, err := New[[]byte](1024)
	require.NoError(t, err)
	defer r.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ret, ok := r.PullWait()
		require.Equal(t, true, ok)
		require.Equal(t, bytes.Repeat([]byte{1, 2, 3, 4}, 1024/4), ret)
	}()

	time.Sleep(100 * time.Millisecond)

	ok := r.Push(bytes.Repeat([]byte{1, 2, 3, 4}, 1024/4))
	require.Equal(t, true, ok)

	<-done
}

func TestPullWaitClose(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := r.PullWait()
		require.Equal(t, false, ok)
	}()

	time.Sleep(100 * time.Millisecond)
	r.Close()

	<-done
}

func TestClose(t *testing.T) {
	r, err := New[[]byte](1024)
	require.NoError(t, err)

	ok := r.Push([]byte{1, 2, 3, 4})
	require.Equal(t, true, ok)

	_, ok = r.Pull()
	require.Equal(t, true, ok)

	ok = r.Push([]byte{5, 6, 7, 8})
	require.Equal(t, true, ok)

	r.Close()

	_, ok = r.Pull()
	require.Equal(t, false, ok)

	ok = r.Push([]byte{5, 6, 7, 8})
	require.Equal(t, false, ok)
}

func TestOverflow(t *testing.T) {
	r, err := New[[]byte](32)
	require.NoError(t, err)

	for i := 0; i < 32; i++ {
		ok := r.Push([]byte{1, 2, 3, 4})
		require.Equal(t, true, ok)
	}

	ok := r.Push([]byte{5, 6, 7, 8})
	require.Equal(t, false, ok)

	for i := 0; i < 32; i++ {
		var data []byte
		data, ok = r.Pull()
		require.Equal(t, true, ok)
		require.Equal(t, []byte{1, 2, 3, 4}, data)
	}

	_, ok = r.Pull()
	require.Equal(t, false, ok)
}

func TestOrder(t *testing.T) {
	r, err := New[int](16)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; {
			if r.Push(i) {
				i++
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		v, ok := r.PullWait()
		require.Equal(t, true, ok)
		require.Equal(t, i, v)
	}

	<-done
}

func BenchmarkPushPullContinuous(b *testing.B) {
	r, _ := New[[]byte](1024 * 8)
	defer r.Close()

	data := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 1024*8; i++ {
				r.Push(data)
			}
		}()

		for i := 0; i < 1024*8; i++ {
			r.PullWait()
		}

		<-done
	}
}

func BenchmarkPushPullPaused5(b *testing.B) {
	r, _ := New[[]byte](128)
	defer r.Close()

	data := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 128; i++ {
				r.Push(data)
				time.Sleep(5 * time.Millisecond)
			}
		}()

		for i := 0; i < 128; i++ {
			r.PullWait()
		}

		<-done
	}
}
