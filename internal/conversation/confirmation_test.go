package conversation

import "testing"

func TestIsConfirmation(t *testing.T) {
	yes := []string{
		"sim",
		"Sim",
		"SIM!",
		"ok",
		"Ok.",
		"confirmo",
		"sim, confirmo",
		"  pode   confirmar  ",
		"pode sim",
	}
	for _, text := range yes {
		if !IsConfirmation(text) {
			t.Errorf("IsConfirmation(%q) = false, want true", text)
		}
	}

	no := []string{
		"",
		"sim, mas pode ser às 10h?",
		"não",
		"quero confirmar meu endereço",
		"ok vou pensar",
		"simpatia",
	}
	for _, text := range no {
		if IsConfirmation(text) {
			t.Errorf("IsConfirmation(%q) = true, want false", text)
		}
	}
}
