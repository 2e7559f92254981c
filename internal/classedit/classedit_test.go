package classedit

import (
	"strings"
	"testing"
)

const entity = `<?php

namespace App\Entity;

use Doctrine\ORM\Mapping as ORM;

class Product
{
    private $id;
}
`

func TestAddUseStatement(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		class string
		want  string
	}{
		{
			name:  "after last use",
			src:   entity,
			class: `Doctrine\Common\Collections\ArrayCollection`,
			want:  "use Doctrine\\ORM\\Mapping as ORM;\nuse Doctrine\\Common\\Collections\\ArrayCollection;\n",
		},
		{
			name:  "after namespace",
			src:   "<?php\n\nnamespace App\\Entity;\n\nclass A\n{\n}\n",
			class: `\App\Repository\ARepository`,
			want:  "namespace App\\Entity;\n\nuse App\\Repository\\ARepository;\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.src)
			if err := m.AddUseStatement(tt.class); err != nil {
				t.Fatalf("AddUseStatement() error = %v", err)
			}
			if !strings.Contains(m.SourceCode(), tt.want) {
				t.Errorf("SourceCode() =\n%s\nwant to contain\n%s", m.SourceCode(), tt.want)
			}
		})
	}
}

func TestAddUseStatement_NoDuplicate(t *testing.T) {
	m := New(entity)
	m.AddUseStatement(`Doctrine\ORM\Mapping as ORM`)

	if strings.Count(m.SourceCode(), "use Doctrine") != 1 {
		t.Errorf("duplicate import:\n%s", m.SourceCode())
	}
}

func TestAddMethod(t *testing.T) {
	m := New(entity)
	err := m.AddMethod("public function getId(): ?int\n{\n    return $this->id;\n}")
	if err != nil {
		t.Fatalf("AddMethod() error = %v", err)
	}

	src := m.SourceCode()
	if !strings.Contains(src, "    public function getId(): ?int\n    {\n        return $this->id;\n    }\n}\n") {
		t.Errorf("SourceCode() =\n%s", src)
	}
	if !m.HasMethod("getId") {
		t.Error("HasMethod(getId) = false")
	}
	if m.HasMethod("getName") {
		t.Error("HasMethod(getName) = true")
	}
}

func TestAddMethod_NoClass(t *testing.T) {
	if err := New("<?php\nreturn [];\n").AddMethod("function x() {}"); err == nil {
		t.Error("AddMethod() without a class should fail")
	}
}
