package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quizrank-service/internal/domain"
)

// ReadBankFile decodes one YAML question bank.
func ReadBankFile(path string) (domain.QuestionBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.QuestionBank{}, err
	}
	var bank domain.QuestionBank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return domain.QuestionBank{}, fmt.Errorf("parse bank %s: %w", path, err)
	}
	return bank, nil
}

// ReadBankFiles decodes every path, failing on the first error.
func ReadBankFiles(paths ...string) ([]domain.QuestionBank, error) {
	banks := make([]domain.QuestionBank, 0, len(paths))
	for _, p := range paths {
		bank, err := ReadBankFile(p)
		if err != nil {
			return nil, err
		}
		banks = append(banks, bank)
	}
	return banks, nil
}
