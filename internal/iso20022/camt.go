package iso20022

import (
	"bytes"
	"io"

	"github.com/shopspring/decimal"

	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// ParseCamt decodes a camt.052.001.02 (BkToCstmrAcctRpt) or
// camt.053.001.02 (BkToCstmrStmt) document.
func ParseCamt(r io.Reader) (Statement, error) {
	root, err := xmlenc.Parse(r)
	if err != nil {
		return Statement{}, err
	}
	if err := xmlenc.RequireRoot(root, "Document"); err != nil {
		return Statement{}, errors.Parse(err, "camt: root must be Document")
	}

	if rpt, ok, err := xmlenc.MaybeUniqueChild(root, "BkToCstmrAcctRpt"); err == nil && ok {
		return parseReportOrStatement(rpt, "Rpt")
	} else if err != nil {
		return Statement{}, err
	}

	if stmt, ok, err := xmlenc.MaybeUniqueChild(root, "BkToCstmrStmt"); err == nil && ok {
		return parseReportOrStatement(stmt, "Stmt")
	} else if err != nil {
		return Statement{}, err
	}

	return Statement{}, errors.Parse(nil, "camt: Document must contain BkToCstmrAcctRpt or BkToCstmrStmt")
}

func parseReportOrStatement(doc *xmlenc.Node, childTag string) (Statement, error) {
	section, err := xmlenc.RequireUniqueChild(doc, childTag)
	if err != nil {
		return Statement{}, errors.Parse(err, "camt: missing %s", childTag)
	}

	acct, err := xmlenc.RequireUniqueChild(section, "Acct")
	if err != nil {
		return Statement{}, err
	}
	id, err := xmlenc.RequireUniqueChild(acct, "Id")
	if err != nil {
		return Statement{}, err
	}
	ibanNode, err := xmlenc.RequireUniqueChild(id, "IBAN")
	if err != nil {
		return Statement{}, err
	}

	stmt := Statement{AccountIBAN: ibanNode.TrimmedText()}

	if err := parseBalances(section, &stmt); err != nil {
		return Statement{}, err
	}

	err = xmlenc.MapEachChild(section, "Ntry", func(n *xmlenc.Node) error {
		tx, err := parseEntry(n, stmt.AccountIBAN)
		if err != nil {
			return err
		}
		stmt.Transactions = append(stmt.Transactions, tx...)
		return nil
	})
	if err != nil {
		return Statement{}, err
	}

	return stmt, nil
}

func parseBalances(section *xmlenc.Node, stmt *Statement) error {
	return xmlenc.MapEachChild(section, "Bal", func(bal *xmlenc.Node) error {
		tp, err := xmlenc.RequireUniqueChild(bal, "Tp")
		if err != nil {
			return err
		}
		cdOrPrtry, err := xmlenc.RequireUniqueChild(tp, "CdOrPrtry")
		if err != nil {
			return err
		}
		cd, err := xmlenc.RequireUniqueChild(cdOrPrtry, "Cd")
		if err != nil {
			return err
		}

		amtNode, err := xmlenc.RequireUniqueChild(bal, "Amt")
		if err != nil {
			return err
		}
		amt, err := decimal.NewFromString(amtNode.TrimmedText())
		if err != nil {
			return errors.Parse(err, "camt: invalid balance amount %q", amtNode.TrimmedText())
		}

		cdtDbtNode, err := xmlenc.RequireUniqueChild(bal, "CdtDbtInd")
		if err != nil {
			return err
		}
		if cdtDbtNode.TrimmedText() == string(DirectionDebit) {
			amt = amt.Neg()
		}

		switch cd.TrimmedText() {
		case "OPBD":
			stmt.OpeningBalance = &amt
		case "CLBD":
			stmt.ClosingBalance = &amt
		}
		return nil
	})
}

// parseEntry expands one Ntry into one normalized transaction per
// NtryDtls/TxDtls detail record (or a single synthetic one if there are no
// detail records at all).
func parseEntry(n *xmlenc.Node, bookingIBAN string) ([]NormalizedTransaction, error) {
	amtNode, err := xmlenc.RequireUniqueChild(n, "Amt")
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(amtNode.TrimmedText())
	if err != nil {
		return nil, errors.Parse(err, "camt: invalid entry amount %q", amtNode.TrimmedText())
	}
	currency, _ := amtNode.Attr("Ccy")

	stsNode, err := xmlenc.RequireUniqueChild(n, "Sts")
	if err != nil {
		return nil, err
	}
	status, err := mapStatus(stsNode.TrimmedText())
	if err != nil {
		return nil, err
	}

	cdtDbtNode, err := xmlenc.RequireUniqueChild(n, "CdtDbtInd")
	if err != nil {
		return nil, err
	}
	direction, err := mapDirection(cdtDbtNode.TrimmedText())
	if err != nil {
		return nil, err
	}

	var code BankTransactionCode
	if bkTxCd, ok, err := xmlenc.MaybeUniqueChild(n, "BkTxCd"); err != nil {
		return nil, err
	} else if ok {
		code, err = parseBankTxCode(bkTxCd)
		if err != nil {
			return nil, err
		}
	}

	var entryRef string
	if refNode, ok, err := xmlenc.MaybeUniqueChild(n, "NtryRef"); err != nil {
		return nil, err
	} else if ok {
		entryRef = refNode.TrimmedText()
	}

	var details []*xmlenc.Node
	if ntryDtls, ok, err := xmlenc.MaybeUniqueChild(n, "NtryDtls"); err != nil {
		return nil, err
	} else if ok {
		err = xmlenc.MapEachChild(ntryDtls, "TxDtls", func(td *xmlenc.Node) error {
			details = append(details, td)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	isBatch := len(details) > 1

	base := NormalizedTransaction{
		BookingAccountIBAN: bookingIBAN,
		Amount:             signedAmount(amount, direction),
		Currency:           currency,
		Status:             status,
		Direction:          direction,
		IsBatch:            isBatch,
		BankTxCode:         code,
		EntryReference:     entryRef,
	}

	if len(details) == 0 {
		return []NormalizedTransaction{base}, nil
	}

	txs := make([]NormalizedTransaction, 0, len(details))
	for _, td := range details {
		tx := base
		if err := parseTxDetail(td, &tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if btchNode, ok, _ := xmlenc.MaybeUniqueChild(n, "BtchBookg"); ok {
		declared := btchNode.TrimmedText() == "true"
		if declared != isBatch {
			for i := range txs {
				txs[i].BatchFlagMismatch = true
			}
		}
	}

	return txs, nil
}

func parseTxDetail(td *xmlenc.Node, tx *NormalizedTransaction) error {
	if refs, ok, err := xmlenc.MaybeUniqueChild(td, "Refs"); err != nil {
		return err
	} else if ok {
		if e2e, ok, err := xmlenc.MaybeUniqueChild(refs, "EndToEndId"); err != nil {
			return err
		} else if ok {
			tx.EndToEndID = e2e.TrimmedText()
		}
	}

	if rltdPties, ok, err := xmlenc.MaybeUniqueChild(td, "RltdPties"); err != nil {
		return err
	} else if ok {
		populateCounterpart(rltdPties, tx)
	}

	if amtDtls, ok, err := xmlenc.MaybeUniqueChild(td, "AmtDtls"); err != nil {
		return err
	} else if ok {
		if txAmt, ok, err := xmlenc.MaybeUniqueChild(amtDtls, "TxAmt"); err != nil {
			return err
		} else if ok {
			if amtNode, ok, err := xmlenc.MaybeUniqueChild(txAmt, "Amt"); err != nil {
				return err
			} else if ok {
				if amt, err := decimal.NewFromString(amtNode.TrimmedText()); err == nil {
					tx.Amount = signedAmount(amt, tx.Direction)
				}
			}
		}
	}

	var remit string
	if rmtInf, ok, err := xmlenc.MaybeUniqueChild(td, "RmtInf"); err != nil {
		return err
	} else if ok {
		err = xmlenc.MapEachChild(rmtInf, "Ustrd", func(u *xmlenc.Node) error {
			remit += u.TrimmedText()
			return nil
		})
		if err != nil {
			return err
		}
	}
	tx.UnstructuredRemit = remit

	return nil
}

func populateCounterpart(rltdPties *xmlenc.Node, tx *NormalizedTransaction) {
	partyTag := "Cdtr"
	acctTag := "CdtrAcct"
	if tx.Direction == DirectionCredit {
		partyTag = "Dbtr"
		acctTag = "DbtrAcct"
	}

	if party, ok, _ := xmlenc.MaybeUniqueChild(rltdPties, partyTag); ok {
		if nm, ok, _ := xmlenc.MaybeUniqueChild(party, "Nm"); ok {
			tx.CounterpartName = nm.TrimmedText()
		}
	}
	if acct, ok, _ := xmlenc.MaybeUniqueChild(rltdPties, acctTag); ok {
		if id, ok, _ := xmlenc.MaybeUniqueChild(acct, "Id"); ok {
			if iban, ok, _ := xmlenc.MaybeUniqueChild(id, "IBAN"); ok {
				tx.CounterpartIBAN = iban.TrimmedText()
			}
		}
	}
}

func parseBankTxCode(bkTxCd *xmlenc.Node) (BankTransactionCode, error) {
	var code BankTransactionCode

	if domn, ok, err := xmlenc.MaybeUniqueChild(bkTxCd, "Domn"); err != nil {
		return code, err
	} else if ok {
		if cd, ok, _ := xmlenc.MaybeUniqueChild(domn, "Cd"); ok {
			code.Domain = cd.TrimmedText()
		}
		if fmly, ok, _ := xmlenc.MaybeUniqueChild(domn, "Fmly"); ok {
			if cd, ok, _ := xmlenc.MaybeUniqueChild(fmly, "Cd"); ok {
				code.Family = cd.TrimmedText()
			}
			if subFmlyCd, ok, _ := xmlenc.MaybeUniqueChild(fmly, "SubFmlyCd"); ok {
				code.Subfamily = subFmlyCd.TrimmedText()
			}
		}
	}

	if prtry, ok, err := xmlenc.MaybeUniqueChild(bkTxCd, "Prtry"); err != nil {
		return code, err
	} else if ok {
		if cd, ok, _ := xmlenc.MaybeUniqueChild(prtry, "Cd"); ok {
			code.PropCode = cd.TrimmedText()
		}
		if issr, ok, _ := xmlenc.MaybeUniqueChild(prtry, "Issr"); ok {
			code.PropIssuer = issr.TrimmedText()
		}
	}

	return code, nil
}

func mapStatus(s string) (Status, error) {
	switch s {
	case "BOOK":
		return StatusBooked, nil
	case "PDNG":
		return StatusPending, nil
	default:
		return "", errors.Parse(nil, "camt: unknown entry status %q", s)
	}
}

func mapDirection(s string) (Direction, error) {
	switch s {
	case string(DirectionCredit):
		return DirectionCredit, nil
	case string(DirectionDebit):
		return DirectionDebit, nil
	default:
		return "", errors.Parse(nil, "camt: unknown credit/debit indicator %q", s)
	}
}

func signedAmount(amount decimal.Decimal, dir Direction) decimal.Decimal {
	if dir == DirectionDebit {
		return amount.Neg()
	}
	return amount
}

// MessageID extracts the bank-assigned GrpHdr/MsgId of a camt document,
// the dedup key raw bank messages are keyed by within a connection.
func MessageID(document []byte) (string, error) {
	root, err := xmlenc.Parse(bytes.NewReader(document))
	if err != nil {
		return "", err
	}
	if err := xmlenc.RequireRoot(root, "Document"); err != nil {
		return "", errors.Parse(err, "camt: root must be Document")
	}

	var section *xmlenc.Node
	if rpt, ok, err := xmlenc.MaybeUniqueChild(root, "BkToCstmrAcctRpt"); err != nil {
		return "", err
	} else if ok {
		section = rpt
	} else if stmt, ok, err := xmlenc.MaybeUniqueChild(root, "BkToCstmrStmt"); err != nil {
		return "", err
	} else if ok {
		section = stmt
	} else {
		return "", errors.Parse(nil, "camt: Document must contain BkToCstmrAcctRpt or BkToCstmrStmt")
	}

	grpHdr, err := xmlenc.RequireUniqueChild(section, "GrpHdr")
	if err != nil {
		return "", err
	}
	msgID, err := xmlenc.RequireUniqueChild(grpHdr, "MsgId")
	if err != nil {
		return "", err
	}
	return msgID.TrimmedText(), nil
}

// SumCreditsDebits returns the sum of credit amounts and the sum of debit
// amounts (both non-negative) across txs, for the balance round-trip
// property.
func SumCreditsDebits(txs []NormalizedTransaction) (credits, debits decimal.Decimal) {
	credits = decimal.Zero
	debits = decimal.Zero
	for _, tx := range txs {
		switch tx.Direction {
		case DirectionCredit:
			credits = credits.Add(tx.Amount)
		case DirectionDebit:
			debits = debits.Add(tx.Amount.Abs())
		}
	}
	return
}
