package vad

import "testing"

func TestStubDetector_ClassifiesSilenceAndTone(t *testing.T) {
	d := NewStubDetector(Config{SampleRate: 16000})

	silence := make([]int16, 320)
	res, err := d.Detect(silence, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsSpeech {
		t.Fatalf("expected silence to be classified as non-speech")
	}

	loud := make([]int16, 320)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 20000
		} else {
			loud[i] = -20000
		}
	}
	res, err = d.Detect(loud, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsSpeech {
		t.Fatalf("expected loud tone to be classified as speech")
	}
}

func TestStubDetector_WrongSampleRate(t *testing.T) {
	d := NewStubDetector(Config{SampleRate: 16000})
	_, err := d.Detect(make([]int16, 10), 8000)
	if err != ErrWrongSampleRate {
		t.Fatalf("expected ErrWrongSampleRate, got %v", err)
	}
}

func TestStubDetector_SetThresholdChangesClassification(t *testing.T) {
	d := NewStubDetector(Config{SampleRate: 16000, Threshold: 0.5})
	quiet := make([]int16, 320)
	for i := range quiet {
		quiet[i] = 1000
	}
	res, _ := d.Detect(quiet, 16000)
	if res.IsSpeech {
		t.Fatalf("expected quiet signal to be non-speech at high threshold")
	}

	d.SetThreshold(0.01)
	res, _ = d.Detect(quiet, 16000)
	if !res.IsSpeech {
		t.Fatalf("expected same signal to be speech after lowering threshold")
	}
}
