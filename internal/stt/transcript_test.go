package stt

import "testing"

func TestAssembler_AccumulatesFinalFragments(t *testing.T) {
	a := NewUtteranceAssembler()

	if _, fired := a.OnTranscript("I need to", true, false); fired {
		t.Error("Non-terminal final fragment should not fire")
	}
	utterance, fired := a.OnTranscript("book an appointment", true, true)
	if !fired {
		t.Fatal("speech_final should fire the utterance")
	}
	if utterance != "I need to book an appointment" {
		t.Errorf("Unexpected utterance: %q", utterance)
	}
}

func TestAssembler_InterimFragmentsIgnored(t *testing.T) {
	a := NewUtteranceAssembler()

	if _, fired := a.OnTranscript("I nee", false, false); fired {
		t.Error("Interim fragment should not fire")
	}
	if a.Pending() {
		t.Error("Interim fragment should not be buffered")
	}
}

func TestAssembler_SpeechFinalThenUtteranceEnd_FiresOnce(t *testing.T) {
	a := NewUtteranceAssembler()

	fires := 0
	if _, fired := a.OnTranscript("hello there", true, true); fired {
		fires++
	}
	if _, fired := a.OnUtteranceEnd(); fired {
		fires++
	}

	if fires != 1 {
		t.Errorf("Expected exactly one utterance, got %d", fires)
	}
}

func TestAssembler_UtteranceEndAlone(t *testing.T) {
	a := NewUtteranceAssembler()

	a.OnTranscript("hello", true, false)
	a.OnTranscript("there", true, false)

	utterance, fired := a.OnUtteranceEnd()
	if !fired {
		t.Fatal("UtteranceEnd with buffered text should fire")
	}
	if utterance != "hello there" {
		t.Errorf("Unexpected utterance: %q", utterance)
	}

	// Nothing buffered now; a second signal must not fire.
	if _, fired := a.OnUtteranceEnd(); fired {
		t.Error("UtteranceEnd with empty buffer should not fire")
	}
}

func TestAssembler_NextUtteranceAfterSuppression(t *testing.T) {
	a := NewUtteranceAssembler()

	// First utterance ends via speech_final; the trailing silence signal is
	// suppressed.
	a.OnTranscript("first utterance", true, true)
	a.OnUtteranceEnd()

	// Second utterance ends via silence only and must still fire.
	a.OnTranscript("second utterance", true, false)
	utterance, fired := a.OnUtteranceEnd()
	if !fired || utterance != "second utterance" {
		t.Errorf("Second utterance lost: %q, fired=%v", utterance, fired)
	}
}

func TestAssembler_EmptySpeechFinalDoesNotFire(t *testing.T) {
	a := NewUtteranceAssembler()

	if _, fired := a.OnTranscript("", true, true); fired {
		t.Error("speech_final with no buffered text should not fire")
	}
}

func TestAssembler_Flush(t *testing.T) {
	a := NewUtteranceAssembler()

	a.OnTranscript("trailing words", true, false)

	utterance, ok := a.Flush()
	if !ok || utterance != "trailing words" {
		t.Errorf("Flush = %q, %v", utterance, ok)
	}
	if _, ok := a.Flush(); ok {
		t.Error("Second flush should be empty")
	}
}
