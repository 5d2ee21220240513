package form

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validAnswers() map[string]string {
	return map[string]string{
		"firstName":        "Ada",
		"lastName":         "Lovelace",
		"email":            "ada@example.com",
		"phone":            "+33 6 12 34 56 78",
		"dateOfBirth":      "2004-05-17",
		"nationality":      "Française",
		"program":          "Mastère Architecte Solutions",
		"rhythm":           "Alternance",
		"campus":           "Orléans",
		"currentLevel":     "Bac+3",
		"currentSchool":    "Université de Lyon",
		"motivationLetter": strings.Repeat("Je souhaite rejoindre l'école. ", 5),
		"discoveryChannel": "Portes Ouvertes",
	}
}

func TestDefaultDefinitionShape(t *testing.T) {
	def := Default()

	if def.SectionCount() != 4 {
		t.Fatalf("expected 4 sections, got %d", def.SectionCount())
	}
	var perSection []int
	for i := 1; i <= def.SectionCount(); i++ {
		sec, _ := def.Section(i)
		perSection = append(perSection, len(sec.Fields))
	}
	if diff := cmp.Diff([]int{6, 5, 2, 0}, perSection); diff != "" {
		t.Fatalf("fields per section (-want +got):\n%s", diff)
	}
	if last, _ := def.Section(4); !last.Documents {
		t.Fatalf("expected terminal section to carry documents")
	}

	cv, ok := def.Slot("cv")
	if !ok || !cv.Required || cv.MaxBytes != 5<<20 || !cv.AcceptsName("CV.PDF") || cv.AcceptsName("cv.png") {
		t.Fatalf("unexpected cv slot: %+v", cv)
	}
	id, ok := def.Slot("identity")
	if !ok || !id.AcceptsName("passport.jpeg") || !id.AcceptsMime("image/png") {
		t.Fatalf("unexpected identity slot: %+v", id)
	}
	if len(def.OptionsFor("program")) != 15 {
		t.Fatalf("expected 15 programmes, got %d", len(def.OptionsFor("program")))
	}
	if idx, _ := def.SectionOf("motivationLetter"); idx != 3 {
		t.Fatalf("motivationLetter belongs to section 3, got %d", idx)
	}
}

func TestValidateField(t *testing.T) {
	t.Parallel()
	def := Default()

	tests := []struct {
		field string
		value string
		ok    bool
		msg   string
	}{
		{field: "firstName", value: "Ada", ok: true},
		{field: "firstName", value: "   ", ok: false, msg: "Le prénom est requis"},
		{field: "email", value: "", ok: false, msg: "L'email est requis"},
		{field: "email", value: "not-an-email", ok: false, msg: "Email invalide"},
		{field: "phone", value: "06 12 34 56 78", ok: true},
		{field: "phone", value: "abc", ok: false, msg: "Numéro de téléphone invalide"},
		{field: "dateOfBirth", value: "17/05/2004", ok: false, msg: "Date de naissance invalide"},
		{field: "campus", value: "Marseille", ok: false, msg: "Veuillez sélectionner un campus"},
		{field: "campus", value: "Lyon", ok: true},
		{field: "motivationLetter", value: "trop court", ok: false, msg: "La lettre de motivation doit contenir au moins 100 caractères"},
		{field: "motivationLetter", value: strings.Repeat("é", 100), ok: true},
		{field: "unknown", value: "x", ok: false, msg: defaultInvalidMessage},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.field+"/"+tt.value, func(t *testing.T) {
			t.Parallel()
			msg, ok := def.ValidateField(tt.field, tt.value)
			if ok != tt.ok {
				t.Fatalf("ValidateField(%q, %q) ok=%v, want %v (msg %q)", tt.field, tt.value, ok, tt.ok, msg)
			}
			if !tt.ok && msg != tt.msg {
				t.Fatalf("unexpected message %q, want %q", msg, tt.msg)
			}
		})
	}
}

func TestValidateAnswers(t *testing.T) {
	def := Default()

	if errs := def.ValidateAnswers(validAnswers()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	answers := validAnswers()
	delete(answers, "phone")
	answers["extra"] = "x"
	errs := def.ValidateAnswers(answers)
	want := map[string]string{
		"phone": "Le téléphone est requis",
		"extra": "Champ inconnu",
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("errors (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBrokenDefinitions(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"empty":        "sections: []",
		"duplicate":    "sections:\n  - fields:\n      - name: a\n      - name: a\n",
		"unknown list": "sections:\n  - fields:\n      - name: a\n        options: nope\n",
		"bad slot":     "sections:\n  - fields: []\nslots:\n  - name: cv\n    maxBytes: 0\n",
		"invalid yaml": "sections: [",
	}
	for name, doc := range cases {
		if _, err := Load([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
